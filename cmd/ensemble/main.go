package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx := context.Background()
	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ensemble", flag.ExitOnError)
	dataDir := fs.String("data", "", "Directory for sessions and the search index (default: user config dir)")
	store := fs.String("store", "", "Session store: json or sqlite")
	tone := fs.String("tone", "", "Persona tone: neutral or casual")
	userRole := fs.String("user", "", "Role the user plays in the scene")
	sessionID := fs.String("session", "", "Resume a saved session by id")
	scenario := fs.String("scenario", "", "Scenario of a new session")
	parallel := fs.Bool("parallel", false, "Issue each round's model calls concurrently")
	verbose := fs.Bool("v", false, "Log model calls and checkpoints to stderr")

	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := prepareRuntimeEnv(ctx, runtimeFlags{
		DataDir:  *dataDir,
		Store:    *store,
		Tone:     *tone,
		UserRole: *userRole,
		Parallel: *parallel,
		Verbose:  *verbose,
	})
	if err != nil {
		return err
	}
	defer env.Close()

	var sess *session.Session
	if *sessionID != "" {
		sess, err = env.Store.Load(ctx, *sessionID)
		if err != nil {
			return err
		}
	} else {
		role := env.UserRole
		if role == "" {
			role = "Visitor"
		}
		sess = session.New(strings.TrimSpace(*scenario), role)
	}

	r := newREPL(env, sess, os.Stdout)
	fmt.Fprintf(os.Stdout, "🎭 %s (you are the %s). Type /help for commands.\n", sess.Title, sess.UserRole)
	return r.Run(ctx, os.Stdin)
}
