// Package format renders record collections into chat-ready text. Everything
// here is a pure function of its input.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coder7br/tjscope/pkg/processo"
)

const (
	semResultados = "❌ Nenhum processo encontrado"

	// Per-year item caps for the summarized views.
	todosPorAno = 5
	numsPorAno  = 20
	buscaMax    = 10
)

var divider = strings.Repeat("─", 40)

// Ano renders the full listing for one year.
func Ano(procs []processo.Processo, ano int) string {
	if len(procs) == 0 {
		return fmt.Sprintf("❌ Nenhum processo encontrado para %d", ano)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 *PROCESSOS %d* (%d processos)\n\n", ano, len(procs))

	for i, p := range procs {
		fmt.Fprintf(&b, "*%02d. %s*\n", i+1, p.Numero)
		fmt.Fprintf(&b, "⚖ %s\n", p.Classe)
		fmt.Fprintf(&b, "📝 %s\n", truncate(p.Assunto, 50))
		fmt.Fprintf(&b, "👨‍💼 %s\n", p.Advogado)
		fmt.Fprintf(&b, "📄 %s\n", p.DataMovimentacao)
		fmt.Fprintf(&b, "🔗 `/link_%s`\n", p.ID)
		fmt.Fprintf(&b, "📋 `/detalhes_%s`\n", p.ID)
		b.WriteString(divider + "\n\n")
	}
	return b.String()
}

// Todos renders the all-years summary, capped at a few items per year.
func Todos(procs []processo.Processo) string {
	if len(procs) == 0 {
		return semResultados
	}

	var b strings.Builder
	b.WriteString("📋 *TODOS OS PROCESSOS*\n\n")

	for _, g := range processo.GroupByYear(procs) {
		fmt.Fprintf(&b, "🎯 *%d* (%d processos)\n", g.Ano, len(g.Processos))

		shown := g.Processos
		if len(shown) > todosPorAno {
			shown = shown[:todosPorAno]
		}
		for i, p := range shown {
			fmt.Fprintf(&b, "%02d. %s\n", i+1, p.Numero)
			fmt.Fprintf(&b, "   ⚖ %s\n", p.Classe)
			fmt.Fprintf(&b, "   📝 %s\n", truncate(p.Assunto, 40))
			fmt.Fprintf(&b, "   🔗 `/link_%s`\n\n", p.ID)
		}
		if rest := len(g.Processos) - todosPorAno; rest > 0 {
			fmt.Fprintf(&b, "   ... e mais %d processos\n", rest)
		}
		b.WriteString(divider + "\n\n")
	}

	b.WriteString("💡 Use `/nums` para ver apenas números ou `/2024` para um ano específico")
	return b.String()
}

// Nums renders the numbers-only view.
func Nums(procs []processo.Processo) string {
	if len(procs) == 0 {
		return semResultados
	}

	var b strings.Builder
	b.WriteString("🔢 *NÚMEROS DOS PROCESSOS*\n\n")

	for _, g := range processo.GroupByYear(procs) {
		fmt.Fprintf(&b, "🎯 *%d* (%d processos):\n", g.Ano, len(g.Processos))

		shown := g.Processos
		if len(shown) > numsPorAno {
			shown = shown[:numsPorAno]
		}
		for i, p := range shown {
			fmt.Fprintf(&b, "%02d. %s\n", i+1, p.Numero)
			fmt.Fprintf(&b, "   🔗 `/link_%s` | 📋 `/detalhes_%s`\n", p.ID, p.ID)
		}
		if rest := len(g.Processos) - numsPorAno; rest > 0 {
			fmt.Fprintf(&b, "   ... e mais %d processos\n", rest)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Busca renders search results for a number fragment.
func Busca(results []processo.Processo, query string) string {
	if len(results) == 0 {
		return fmt.Sprintf("❌ Nenhum processo encontrado com: %s", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 *RESULTADOS PARA: %s*\n\n", query)

	shown := results
	if len(shown) > buscaMax {
		shown = shown[:buscaMax]
	}
	for i, p := range shown {
		fmt.Fprintf(&b, "*%d. %s*\n", i+1, p.Numero)
		fmt.Fprintf(&b, "⚖ %s\n", p.Classe)
		fmt.Fprintf(&b, "📝 %s\n", truncate(p.Assunto, 50))
		fmt.Fprintf(&b, "👨‍💼 %s\n", p.Advogado)
		fmt.Fprintf(&b, "🔗 `/link_%s` | 📋 `/detalhes_%s`\n", p.ID, p.ID)
		b.WriteString(strings.Repeat("─", 30) + "\n\n")
	}
	if len(results) > buscaMax {
		fmt.Fprintf(&b, "💡 Mostrando %d de %d resultados\n", buscaMax, len(results))
	}
	return b.String()
}

// Detalhes renders a proceeding's detail page fields.
func Detalhes(det *processo.Detalhes) string {
	if det == nil {
		return "❌ Não foi possível obter os detalhes do processo"
	}
	return fmt.Sprintf(
		"📋 *DETALHES DO PROCESSO*\n\n"+
			"🔢 *Número:* %s\n"+
			"⚖ *Classe:* %s\n"+
			"📝 *Assunto:* %s\n"+
			"🏛 *Foro:* %s\n"+
			"⚖ *Vara:* %s\n"+
			"📍 *Área:* %s",
		det.Numero, det.Classe, det.Assunto, det.Foro, det.Vara, det.Area)
}

// Stats renders per-year counts with the two most common classes of each
// year.
func Stats(oab string, procs []processo.Processo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *ESTATÍSTICAS - %s*\n\n", oab)
	fmt.Fprintf(&b, "📈 *Total:* %d processos\n\n", len(procs))

	for _, g := range processo.GroupByYear(procs) {
		fmt.Fprintf(&b, "*%d:* %d processos\n", g.Ano, len(g.Processos))
		for _, cc := range topClasses(g.Processos, 2) {
			fmt.Fprintf(&b, "   └ %s: %d\n", truncateRaw(cc.classe, 25), cc.count)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type classCount struct {
	classe string
	count  int
}

func topClasses(procs []processo.Processo, n int) []classCount {
	counts := make(map[string]int)
	for _, p := range procs {
		counts[p.Classe]++
	}

	out := make([]classCount, 0, len(counts))
	for classe, count := range counts {
		out = append(out, classCount{classe, count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].classe < out[j].classe
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// truncate shortens long free text to max runes, ellipsis included.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// truncateRaw hard-cuts without an ellipsis.
func truncateRaw(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
