package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gorm.io/gorm"
)

func TestKindOf_ClassifiesErrors(t *testing.T) {
	cases := []struct {
		err      error
		expected ErrorKind
	}{
		{NewNotFoundError("missing"), ErrorKindNotFound},
		{NewForbiddenError("no"), ErrorKindForbidden},
		{NewConflictError("taken"), ErrorKindConflict},
		{NewInvalidArgumentError("bad"), ErrorKindInvalidArgument},
		{NewInvalidAmountError("bad amount"), ErrorKindInvalidAmount},
		{NewTypeMismatchError("mismatch"), ErrorKindTypeMismatch},
		{ErrorRecordNotFound, ErrorKindNotFound},
		{gorm.ErrRecordNotFound, ErrorKindNotFound},
		{errors.New("driver: bad connection"), ErrorKindInternal},
		{nil, ErrorKindInternal},
	}
	for _, tc := range cases {
		if kind := KindOf(tc.err); kind != tc.expected {
			t.Fatalf("KindOf(%v) expected %s, got %s", tc.err, tc.expected, kind)
		}
	}
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create transaction: %w", NewInvalidAmountError("amount must be greater than zero"))
	if kind := KindOf(wrapped); kind != ErrorKindInvalidAmount {
		t.Fatalf("expected %s through a wrap, got %s", ErrorKindInvalidAmount, kind)
	}
}

func TestHTTPStatus_MapsEveryKind(t *testing.T) {
	cases := []struct {
		kind     ErrorKind
		expected int
	}{
		{ErrorKindNotFound, http.StatusNotFound},
		{ErrorKindForbidden, http.StatusForbidden},
		{ErrorKindConflict, http.StatusConflict},
		{ErrorKindInvalidArgument, http.StatusBadRequest},
		{ErrorKindInvalidAmount, http.StatusBadRequest},
		{ErrorKindTypeMismatch, http.StatusBadRequest},
		{ErrorKindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if status := HTTPStatus(tc.kind); status != tc.expected {
			t.Fatalf("HTTPStatus(%s) expected %d, got %d", tc.kind, tc.expected, status)
		}
	}
}

func TestUserMessage_HidesInternalDetail(t *testing.T) {
	if msg := UserMessage(NewConflictError("email is already registered")); msg != "email is already registered" {
		t.Fatalf("expected the app error message, got %q", msg)
	}
	if msg := UserMessage(errors.New("dial tcp 10.0.0.3:3306: connect: connection refused")); msg != "something went wrong" {
		t.Fatalf("expected the generic message, got %q", msg)
	}
	if msg := UserMessage(gorm.ErrRecordNotFound); msg != "record not found" {
		t.Fatalf("expected the not found message, got %q", msg)
	}
}
