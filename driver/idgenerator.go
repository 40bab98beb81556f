package driver

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

var idGeneratorMutex sync.Mutex
var idGeneratorInstalled bool
var idGenerator IDGenerator

// IDGenerator can generate IDs for deferred actions and commands.
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

// UseSequentialIDGenerator makes the driver generate sequential IDs. They are
// deterministic from run to run, which keeps test output and traces stable.
func UseSequentialIDGenerator() {
	installIDGenerator(&sequentialIDGenerator{})
}

// UseParallelIDGenerator makes the driver generate IDs that are safe to draw
// from many goroutines without coordination. The IDs are not deterministic.
func UseParallelIDGenerator() {
	installIDGenerator(parallelIDGenerator{})
}

func installIDGenerator(g IDGenerator) {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	if idGeneratorInstalled {
		log.Panic("cannot change id generator type after using it")
	}

	idGenerator = g
	idGeneratorInstalled = true
}

// GetIDGenerator returns the ID generator in use, installing the sequential
// one on first use if none was chosen.
func GetIDGenerator() IDGenerator {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	if !idGeneratorInstalled {
		idGenerator = &sequentialIDGenerator{}
		idGeneratorInstalled = true
	}

	return idGenerator
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	return strconv.FormatUint(idNumber, 10)
}

type parallelIDGenerator struct {
}

func (g parallelIDGenerator) Generate() string {
	return xid.New().String()
}
