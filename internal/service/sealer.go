package service

import "context"

// CommentSealer protects reviewer comments at rest
type CommentSealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, stored string) (string, error)
}

// PlainSealer stores comments as they are
type PlainSealer struct{}

func (PlainSealer) Seal(_ context.Context, plaintext string) (string, error) { return plaintext, nil }
func (PlainSealer) Open(_ context.Context, stored string) (string, error)    { return stored, nil }
