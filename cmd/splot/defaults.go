package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

// applyConfigDefaults sets flag values from config when the flag was not
// set on the command line. Flags > env > config > defaults; the config
// package has already applied env over the files.
func applyConfigDefaults(cmd *cobra.Command) {
	if cfg == nil {
		return
	}

	setDefault := func(name, value string) {
		if value != "" && !cmd.Flags().Changed(name) {
			if f := cmd.Flags().Lookup(name); f != nil {
				_ = f.Value.Set(value)
			}
		}
	}
	setInt := func(name string, value int) {
		if value != 0 {
			setDefault(name, strconv.Itoa(value))
		}
	}
	setBool := func(name string, value bool) {
		if value {
			setDefault(name, "true")
		}
	}

	// serve
	setDefault("listen", cfg.Serve.Addr)
	setInt("arity", cfg.Serve.Arity)
	setInt("data-capacity", cfg.Serve.DataCapacity)
	setInt("text-capacity", cfg.Serve.TextCapacity)
	setDefault("mode", cfg.Serve.Mode)
	setDefault("redact", cfg.Serve.Redact)
	setDefault("redact-patterns", cfg.Serve.RedactPatterns)
	setDefault("page", cfg.Serve.Page)
	setBool("gzip", cfg.Serve.Gzip)
	setDefault("audit", cfg.Serve.Audit)
	setInt("max-batch", cfg.Serve.MaxBatch)
	setDefault("write-timeout", cfg.Serve.WriteTimeout)
	setDefault("tls-cert", cfg.Serve.TLSCert)
	setDefault("tls-key", cfg.Serve.TLSKey)

	// client
	setDefault("target", cfg.Client.Target)
	setDefault("max-backoff", cfg.Client.MaxBackoff)

	// export
	setDefault("format", cfg.Export.Format)
	setDefault("upload", cfg.Export.Upload)
}
