package domain

import "strings"

// Label identifies a (crop, condition) pair or a sentinel class such as
// "Background without Leaves". Index i of the classifier output always
// corresponds to the i-th label of the loaded catalog.
type Label string

// BackgroundLabel is the sentinel class predicted when no plant is in frame.
const BackgroundLabel Label = "Background without Leaves"

// DisplayName replaces internal separators with spaces.
func (l Label) DisplayName() string {
	return strings.ReplaceAll(string(l), "_", " ")
}

func (l Label) String() string {
	return string(l)
}
