package main

import (
	"fmt"
	"io"

	"github.com/MrWong99/comedyhour/internal/config"
)

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       comedyhour: startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "LLM", providerLabel(cfg.Providers.LLM))
	for i, fb := range cfg.Providers.Fallbacks {
		printRow(w, fmt.Sprintf("Fallback %d", i+1), providerLabel(fb))
	}
	for _, a := range cfg.Agents {
		label := a.DisplayName
		if a.Model != "" {
			label += " / " + a.Model
		}
		printRow(w, "Comedian", label)
	}
	printRow(w, "Opens", cfg.Script.Initiator)
	printRow(w, "Max turns", fmt.Sprint(cfg.Script.MaxTurns))
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	if e.Name == "" {
		return "(not configured)"
	}
	if e.Model == "" {
		return e.Name
	}
	return e.Name + " / " + e.Model
}

func printRow(w io.Writer, key, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}
