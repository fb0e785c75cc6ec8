package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const tokenEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

func encoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	return enc, encErr
}

// CountTokens estimates the token count of text. If the encoder cannot
// load it falls back to a rough four-bytes-per-token estimate.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	e, err := encoder()
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(e.Encode(text, nil, nil))
}
