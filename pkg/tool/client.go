package tool

import (
	"github.com/k-taniguchi/sidekick/pkg/adapter"
	"github.com/k-taniguchi/sidekick/pkg/interfaces"
	"github.com/k-taniguchi/sidekick/pkg/repository"
)

// Client contains shared resources that tools can use
type Client struct {
	Store  repository.MemoryStore
	Source interfaces.ChannelSource
	Gemini adapter.Gemini
}
