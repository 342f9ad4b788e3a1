package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilnworks/kiln/pkg/log"
	"github.com/kilnworks/kiln/pkg/runtime"
	"github.com/kilnworks/kiln/pkg/storage"
	"github.com/kilnworks/kiln/pkg/store"
	"github.com/kilnworks/kiln/pkg/types"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a synthetic workload through the runtime",
	Long: `Bench drives the full runtime against a throwaway store: it generates
batches of transactions over a configurable resource set, schedules them,
waits for every batch to commit, and reports throughput.

The conflict rate is controlled by the size of the resource set relative
to the number of transactions: fewer resources means longer per-resource
chains and less parallelism.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().Int("batches", 50, "Number of batches to submit")
	benchCmd.Flags().Int("txs", 200, "Transactions per batch")
	benchCmd.Flags().Int("resources", 1000, "Size of the resource id space")
	benchCmd.Flags().Int("accesses", 4, "Accesses per transaction")
	benchCmd.Flags().Float64("write-ratio", 0.5, "Fraction of accesses that are writes")
	benchCmd.Flags().Int("workers", 0, "Executor workers (0 = one per CPU)")
	benchCmd.Flags().String("data-dir", "", "Store directory (default: temp dir, removed afterwards)")
}

// benchTx is the synthetic transaction: benchVM bumps the balance of every
// write handle and appends the low byte of the transaction id to its data.
type benchTx struct {
	id       uint64
	accesses []types.AccessMetadata
}

func (t *benchTx) AccessedResources() []types.AccessMetadata {
	return t.accesses
}

// benchVM mutates write handles deterministically.
type benchVM struct{}

func (benchVM) ProcessTransaction(tx types.Transaction, resources []*runtime.AccessHandle) (types.Effects, error) {
	bt := tx.(*benchTx)
	for _, handle := range resources {
		if handle.Metadata().Type == types.AccessWrite {
			s := handle.StateMut()
			s.Balance++
			s.Data = append(s.Data, byte(bt.id))
		}
	}
	return nil, nil
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	serveMetrics(cfg.MetricsAddr)

	batches, _ := cmd.Flags().GetInt("batches")
	txsPerBatch, _ := cmd.Flags().GetInt("txs")
	resourceCount, _ := cmd.Flags().GetInt("resources")
	accessCount, _ := cmd.Flags().GetInt("accesses")
	writeRatio, _ := cmd.Flags().GetFloat64("write-ratio")
	workers, _ := cmd.Flags().GetInt("workers")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	if dataDir == "" {
		tmp, err := os.MkdirTemp("", "kiln-bench-*")
		if err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dataDir = tmp
	}

	st, err := store.OpenBolt(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	rt, err := runtime.New(runtime.Config{
		Workers: workers,
		VM:      benchVM{},
		Storage: storage.Config{
			Read:  storage.ReadConfig{MaxReaders: cfg.Storage.Read.MaxReaders, BufferDepthPerReader: cfg.Storage.Read.BufferDepthPerReader},
			Write: storage.WriteConfig{MaxBatchSize: cfg.Storage.Write.MaxBatchSize, MaxBatchDuration: cfg.Storage.Write.MaxBatchDuration.Std()},
		},
	}, st)
	if err != nil {
		return err
	}

	logger := log.WithComponent("bench")
	logger.Info().
		Int("batches", batches).
		Int("txs_per_batch", txsPerBatch).
		Int("resources", resourceCount).
		Msg("starting benchmark")

	rng := rand.New(rand.NewPCG(0, 42))
	nextTxID := uint64(0)
	start := time.Now()

	var last *runtime.Batch
	for i := 0; i < batches; i++ {
		txs := make([]types.Transaction, 0, txsPerBatch)
		for j := 0; j < txsPerBatch; j++ {
			txs = append(txs, generateTx(rng, &nextTxID, resourceCount, accessCount, writeRatio))
		}
		last = rt.Process(txs)
	}
	if last != nil {
		last.WaitCommitted()
	}
	elapsed := time.Since(start)

	rt.Shutdown()

	total := batches * txsPerBatch
	logger.Info().
		Int("total_txs", total).
		Dur("elapsed", elapsed).
		Float64("txs_per_second", float64(total)/elapsed.Seconds()).
		Msg("benchmark finished")
	return nil
}

// generateTx draws a transaction with distinct resources so the duplicate
// guard never trips.
func generateTx(rng *rand.Rand, nextID *uint64, resourceCount, accessCount int, writeRatio float64) *benchTx {
	id := *nextID
	*nextID++

	seen := make(map[uint64]bool, accessCount)
	accesses := make([]types.AccessMetadata, 0, accessCount)
	for len(accesses) < accessCount {
		res := uint64(rng.IntN(resourceCount))
		if seen[res] {
			continue
		}
		seen[res] = true
		if rng.Float64() < writeRatio {
			accesses = append(accesses, types.Write(types.Uint64ID(res)))
		} else {
			accesses = append(accesses, types.Read(types.Uint64ID(res)))
		}
	}
	return &benchTx{id: id, accesses: accesses}
}
