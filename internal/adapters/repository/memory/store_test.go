package memory_test

import (
	"testing"

	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/storagetest"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) ports.LedgerRepository {
		return memory.NewStore()
	})
}
