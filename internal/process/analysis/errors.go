package analysis

import "errors"

var (
	errBlankQuestion   = errors.New("blank question")
	errOptionCount     = errors.New("options must have exactly 4 entries")
	errBlankOption     = errors.New("blank option")
	errDuplicateOption = errors.New("duplicate option")
	errAnswerNotOption = errors.New("answer is not one of the options")
	errBlankDocument   = errors.New("document has no text")
)
