package engine

// Mode selects the per-turn behavior of a session. It is a closed sum:
// exactly the three variants below exist.
type Mode interface {
	String() string
	mode()
}

// SingleShot runs one turn over a fixed prompt and halts.
type SingleShot struct {
	Prompt string
}

// Interactive re-prompts indefinitely, discarding history between turns.
type Interactive struct{}

// Chat re-prompts indefinitely, carrying prompt and generated tokens
// forward as context for the next turn.
type Chat struct{}

func (SingleShot) mode()  {}
func (Interactive) mode() {}
func (Chat) mode()        {}

func (SingleShot) String() string  { return "single_shot" }
func (Interactive) String() string { return "interactive" }
func (Chat) String() string        { return "chat" }

// ParseMode maps the prompt configuration value to a mode: the literal
// strings "interactive" and "chat" select those modes, anything else is a
// one-shot prompt.
func ParseMode(prompt string) Mode {
	switch prompt {
	case "interactive":
		return Interactive{}
	case "chat":
		return Chat{}
	default:
		return SingleShot{Prompt: prompt}
	}
}
