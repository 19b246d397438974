package config

import (
	"flag"
	"os"
	"time"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-p string   base URL of the planning backend (default from Config)
//	-b string   document store backend: memory, firestore, postgres
//	-d string   path of the local state database
//	-i int      online check interval in seconds (default from Config)
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-p", "-b", "-d", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.PlannerEndpoint, "p", cfg.PlannerEndpoint, "base URL of the planning backend")
	fs.StringVar(&cfg.DocstoreBackend, "b", cfg.DocstoreBackend, "document store backend (memory, firestore, postgres)")
	fs.StringVar(&cfg.LocalDBPath, "d", cfg.LocalDBPath, "path of the local state database")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
