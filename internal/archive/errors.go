package archive

import "errors"

var (
	ErrArchiveClosed = errors.New("archive is closed")
	ErrNilForm       = errors.New("cannot archive nil form")
	ErrNotSubmitted  = errors.New("only submitted forms can be archived")
)
