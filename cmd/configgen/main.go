package main

import (
	"flag"
	"log"

	"github.com/danmuck/cpnet/internal/config"
)

func main() {
	role := flag.String("role", "command-server", "config role: cookie-server|command-server|client")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "cmd/cpd/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.LoadNodeConfig(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", cfg.Role, *input)
		return
	}

	target := *output
	if target == "" {
		target = "cmd/cpd/" + *role + ".config.toml"
	}
	if err := config.WriteTemplate(target, *role, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *role, target)
}
