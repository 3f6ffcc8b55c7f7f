package domain

// Rule names every common grammar must declare.
const (
	RuleNotUnderstood = "not_understood"
	RuleCommonPrompt  = "common_prompt"
	RuleLeaveGreeting = "leave_greeting"
	RuleQuit          = "quit"
)

// CommonDomain is the conventional name of the common grammar.
const CommonDomain = "common"

// DefaultApology is spoken when a turn fails at runtime.
const DefaultApology = "Something went wrong during interpretation of your question, let's start over."

// CommonRules lists the rules a common grammar must declare.
var CommonRules = []string{RuleNotUnderstood, RuleCommonPrompt, RuleLeaveGreeting, RuleQuit}
