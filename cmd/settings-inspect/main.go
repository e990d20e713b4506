// settings-inspect resolves configuration from the sources named on the
// command line and prints the merged tree together with the winning source
// per path. It is a debugging aid for precedence questions: run it with the
// same sources your application uses and see exactly where each value came
// from.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/pflag"

	settings "github.com/MKhiriev/go-settings"
	"github.com/MKhiriev/go-settings/internal/logger"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	files := pflag.StringArray("file", nil, "structured config file, lowest rank first (repeatable)")
	dotenv := pflag.String("dotenv", "", "path to a .env file")
	envPrefix := pflag.String("env-prefix", "", "environment variable prefix filter")
	noEnv := pflag.Bool("no-env", false, "skip the process environment")
	remote := pflag.Bool("remote", false, "add the remote source configured via REMOTE_* env vars")
	concurrent := pflag.Bool("concurrent", false, "fetch sources concurrently")
	verbose := pflag.BoolP("verbose", "v", false, "log resolution progress")
	version := pflag.Bool("version", false, "print build info and exit")
	pflag.Parse()

	if *version {
		fmt.Printf("Build version: %s\nBuild date: %s\nBuild commit: %s\n",
			orNA(buildVersion), orNA(buildDate), orNA(buildCommit))
		return
	}

	log := logger.Nop()
	if *verbose {
		log = logger.NewLogger("settings-inspect")
	}

	builder := settings.New().WithLogger(log)
	for _, f := range *files {
		builder.WithFile(f)
	}
	if *dotenv != "" {
		builder.WithDotEnv(*dotenv)
	}
	if !*noEnv {
		builder.WithEnv(*envPrefix)
	}
	if *remote {
		cfg, err := settings.RemoteConfigFromEnv()
		if err != nil {
			fatal(err)
		}
		builder.WithRemote(cfg)
	}
	if *concurrent {
		builder.WithConcurrentFetch()
	}

	resolver, err := builder.Build()
	if err != nil {
		fatal(err)
	}

	res, err := resolver.Resolve(context.Background())
	if err != nil {
		fatal(err)
	}

	out, err := json.MarshalIndent(res.Tree.Values(), "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))

	fmt.Println("\n# provenance")
	prov := res.Tree.Provenance()
	paths := make([]string, 0, len(prov))
	for p := range prov {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Printf("%-40s %s\n", p, prov[p])
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "settings-inspect:", err)
	os.Exit(1)
}
