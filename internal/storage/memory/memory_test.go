package memory_test

import (
	"testing"

	"github.com/mtlprog/offlinecache/internal/storage/memory"
	"github.com/mtlprog/offlinecache/internal/storage/storagetest"
)

func TestStore_Caches(t *testing.T) {
	storagetest.RunCaches(t, memory.New())
}

func TestStore_EventLog(t *testing.T) {
	storagetest.RunEventLog(t, memory.New())
}
