package usecase

import "errors"

var (
	errNoChatModel = errors.New("no chat model configured")
	errEmptyReply  = errors.New("empty reply")
)
