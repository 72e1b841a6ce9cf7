// Package security provides input validation for text that is handed
// to the model.
//
// The prompt validator detects common prompt-injection patterns in user
// questions before they are embedded into generation prompts:
//
//	validator := security.NewPromptValidator()
//	if !validator.IsSafe(question) {
//	    // refuse or strip before prompting the model
//	}
//
// Detection is pattern-based and covers English and Portuguese attempts
// (instruction overrides, role-playing, delimiter escapes, jailbreak
// keywords) after Unicode normalization. No filter of this kind is
// complete; it is one layer next to system prompt hardening.
package security
