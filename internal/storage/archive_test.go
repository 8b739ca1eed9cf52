package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageExt(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{"https://cdn.example.com/p1.png", ".png"},
		{"https://cdn.example.com/p1.jpg?sig=abc&expires=123", ".jpg"},
		{"https://cdn.example.com/p1.jpeg?X-Amz-Signature=deadbeef", ".jpeg"},
		{"https://cdn.example.com/p1", ".png"},
		{"https://cdn.example.com/p1?format=webp", ".png"},
		{"p1.gif", ".gif"},
		{"", ".png"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, imageExt(tc.source), "source %q", tc.source)
	}
}
