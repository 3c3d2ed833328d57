package prompts

func registerRoundPrompts(registry *PromptRegistry) {
	rounds := []struct {
		id, content, desc string
	}{
		{
			IDRoundIntroduce,
			`Introduce yourself to the {{user_role}}, {{name}}. Stay in character and keep it to two or three sentences.`,
			"Introductions round instruction",
		},
		{
			IDRoundContinue,
			`What do you say now, {{name}}?`,
			"Continuation round instruction",
		},
		{
			IDRoundBroadcast,
			`The {{user_role}} has just spoken to everyone. Answer as {{name}}.`,
			"Broadcast round instruction",
		},
		{
			IDRoundReply,
			`The {{user_role}} is speaking to you directly, {{name}}. Answer them.`,
			"Targeted reply instruction",
		},
		{
			IDRoundPrivate,
			`CONFIDENTIAL: this is a private conversation between you and the {{user_role}}. No other participant can hear it. Answer as {{name}}.`,
			"Private message instruction",
		},
		{
			IDRoundProbeAsk,
			`You noticed that the {{user_role}} has been talking privately with {{peer}}. You do not know what was said. This time, address {{peer}} directly: ask one short, curious question about it, in character as {{name}}.`,
			"Curiosity probe: question from the asking agent",
		},
		{
			IDRoundProbeTell,
			`{{asker}} is curious about your private conversation with the {{user_role}}. Decide in character how much, if anything, to reveal, and answer as {{name}}.`,
			"Curiosity probe: answer from the probed agent",
		},
		{
			IDTitle,
			`Write a title of three to six words for this role-play scene. Reply with the title only, without quotes.

Scene: {{scenario}}`,
			"Session title generation",
		},
	}

	for _, r := range rounds {
		registry.Register(&Prompt{
			ID:          r.id,
			Version:     PromptV1,
			Content:     r.content,
			Description: r.desc,
			Tags:        []string{"round"},
		})
	}
}
