// Package errs 定义分享流程的错误分类。Kind的取值同时作为HTTP接口返回的code。
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	SessionNotFound   Kind = "SESSION_NOT_FOUND"
	PresignFailed     Kind = "PRESIGN_FAILED"
	SessionReadFailed Kind = "SESSION_READ_FAILED"
	UploadFailed      Kind = "UPLOAD_FAILED"
	AlreadyShared     Kind = "SHARE_EXISTS"
	NotShared         Kind = "NOT_SHARED"
	DeleteFailed      Kind = "DELETE_FAILED"
	Unauthorized      Kind = "UNAUTHORIZED"
	InvalidShareID    Kind = "INVALID_SHARE_ID"
	RateLimited       Kind = "RATE_LIMITED"
	NotFound          Kind = "NOT_FOUND"
	Internal          Kind = "INTERNAL"
)

// Error 携带错误类别、面向用户的消息以及底层原因
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf 返回错误链中第一个*Error的类别，没有则为Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message 返回适合直接展示给用户的消息
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
