package quiz

import "fmt"

// State 是测验的状态：空闲，或等待用户回答某个问题。
type State struct {
	question string
	awaiting bool
}

// Idle returns the initial state.
func Idle() State { return State{} }

// AwaitingAnswer returns the state waiting for an answer to question.
func AwaitingAnswer(question string) State {
	return State{question: question, awaiting: true}
}

// IsIdle reports whether no question is pending.
func (s State) IsIdle() bool { return !s.awaiting }

// PendingQuestion returns the question awaiting an answer.
func (s State) PendingQuestion() (string, bool) {
	return s.question, s.awaiting
}

func (s State) String() string {
	if !s.awaiting {
		return "idle"
	}
	return fmt.Sprintf("awaiting answer to %q", s.question)
}
