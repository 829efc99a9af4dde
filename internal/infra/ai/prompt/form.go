package prompt

import (
	"fmt"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

// FormInstruction is sent alongside the screenshot. The model must answer with a raw JSON array.
var FormInstruction = fmt.Sprintf(`Analyze the form visible on this screen.
For every question that offers answer choices, determine the correct answer and its POSITION among the choices
(top to bottom, 1 = first choice).

Raw JSON array only:
[{"question":"...","answer":"...","position":2,"total":4}]

- position = number of the correct choice (1 = topmost)
- total = number of visible choices for that question
- For a free-text field: position=%d, total=0, answer=the text to type
- Ignore Next/Submit/Send buttons and other navigation controls
- Raw JSON, no markdown fences`, domain.FreeTextPosition)

// Placeholder replaces a missing question or answer text.
const Placeholder = "?"
