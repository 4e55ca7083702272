package provider

import "fmt"

// baseSystemPrompt sets the register every persona writes in. Personas
// layer a style on top of it, they never replace it.
const baseSystemPrompt = "You are a player in a competitive online shooter match. " +
	"Write a single, short in-game chat message (under 120 chars). " +
	"Adopt the vernacular of a digital native gamer (informal, rapid-fire, low-effort typing). " +
	"Use text-based emoticons if needed, but never emojis. " +
	"Write like a stream of consciousness or Twitch chat. Avoid punctuation and uppercase letters unless for emphasis. " +
	"Never use formal greetings like 'Hey team' or 'Hello'. " +
	"Your response must strictly follow the style of the assigned Persona."

// voiceSystemPrompt targets the speech pipeline: a little longer and
// written to be heard, not read.
const voiceSystemPrompt = "You are a player in a competitive online shooter match, talking on voice chat. " +
	"Write one spoken line (one or two sentences, under 200 chars) that sounds natural when read aloud by a voice synthesizer. " +
	"Casual gamer register, no emojis, no stage directions, no quotation marks. " +
	"Your response must strictly follow the style of the assigned Persona."

func systemPrompt(req Request) string {
	base := baseSystemPrompt
	if req.Mode == ModeVoice {
		base = voiceSystemPrompt
	}
	prompt := fmt.Sprintf("%s\n\nPersona/Style: %s", base, req.Persona.Style)
	if req.Language != "" && req.Language != "en" {
		prompt += fmt.Sprintf("\nRespond in the language with ISO code %q.", req.Language)
	}
	return prompt
}

func userPrompt(req Request) string {
	situation := req.Context
	if situation == "" {
		situation = "Nothing notable is happening."
	}
	return fmt.Sprintf("Current Match Situation: %s\nWrite a chat message reacting to this situation.", situation)
}
