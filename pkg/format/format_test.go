package format

import (
	"fmt"
	"strings"
	"testing"

	"github.com/coder7br/tjscope/pkg/processo"
)

func mkProc(numero string, ano int) processo.Processo {
	return processo.Processo{
		ID:               processo.DeriveID(numero, "123456SP"),
		Numero:           numero,
		Classe:           "Procedimento Comum",
		Assunto:          "Assunto de teste",
		Ano:              ano,
		DataMovimentacao: "01/02/2024",
		Advogado:         "João Silva",
	}
}

func TestAnoListsEverything(t *testing.T) {
	procs := []processo.Processo{
		mkProc("0000001-01.2024.8.26.0100", 2024),
		mkProc("0000002-02.2024.8.26.0100", 2024),
	}

	out := Ano(procs, 2024)
	if !strings.Contains(out, "PROCESSOS 2024") {
		t.Fatalf("missing header: %q", out)
	}
	for _, p := range procs {
		if !strings.Contains(out, p.Numero) {
			t.Fatalf("missing %s in output", p.Numero)
		}
		if !strings.Contains(out, "/detalhes_"+p.ID) {
			t.Fatalf("missing detail command for %s", p.Numero)
		}
	}
}

func TestAnoEmpty(t *testing.T) {
	out := Ano(nil, 2024)
	if !strings.Contains(out, "Nenhum processo") {
		t.Fatalf("unexpected empty-year message: %q", out)
	}
}

func TestTodosCapsPerYear(t *testing.T) {
	var procs []processo.Processo
	for i := 0; i < 8; i++ {
		procs = append(procs, mkProc(fmt.Sprintf("000000%d-01.2024.8.26.0100", i), 2024))
	}

	out := Todos(procs)
	if got := strings.Count(out, "/link_"); got != todosPorAno {
		t.Fatalf("expected %d items shown, got %d", todosPorAno, got)
	}
	if !strings.Contains(out, "... e mais 3 processos") {
		t.Fatalf("missing overflow note: %q", out)
	}
}

func TestTodosYearOrder(t *testing.T) {
	procs := []processo.Processo{
		mkProc("0000001-01.2023.8.26.0100", 2023),
		mkProc("0000002-01.2024.8.26.0100", 2024),
	}

	out := Todos(procs)
	if strings.Index(out, "*2024*") > strings.Index(out, "*2023*") {
		t.Fatalf("expected 2024 before 2023: %q", out)
	}
}

func TestNumsCapsPerYear(t *testing.T) {
	var procs []processo.Processo
	for i := 0; i < 25; i++ {
		procs = append(procs, mkProc(fmt.Sprintf("%07d-01.2024.8.26.0100", i), 2024))
	}

	out := Nums(procs)
	if got := strings.Count(out, "/detalhes_"); got != numsPorAno {
		t.Fatalf("expected %d items shown, got %d", numsPorAno, got)
	}
	if !strings.Contains(out, "... e mais 5 processos") {
		t.Fatalf("missing overflow note: %q", out)
	}
}

func TestBuscaCapsResults(t *testing.T) {
	var procs []processo.Processo
	for i := 0; i < 12; i++ {
		procs = append(procs, mkProc(fmt.Sprintf("%07d-01.2024.8.26.0100", i), 2024))
	}

	out := Busca(procs, "2024")
	if got := strings.Count(out, "/link_"); got != buscaMax {
		t.Fatalf("expected %d results shown, got %d", buscaMax, got)
	}
	if !strings.Contains(out, "Mostrando 10 de 12") {
		t.Fatalf("missing overflow note: %q", out)
	}

	if out := Busca(nil, "999"); !strings.Contains(out, "Nenhum processo") {
		t.Fatalf("unexpected no-result message: %q", out)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 60)
	got := truncate(long, 50)
	if len([]rune(got)) != 50 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if truncate("curto", 50) != "curto" {
		t.Fatalf("short strings must pass through")
	}
	// Multi-byte text must not be cut mid-rune.
	acentos := strings.Repeat("ç", 60)
	if cut := truncate(acentos, 50); !strings.HasSuffix(cut, "...") || strings.Contains(cut, "�") {
		t.Fatalf("bad rune-aware truncation: %q", cut)
	}
}

func TestDetalhes(t *testing.T) {
	det := &processo.Detalhes{
		Numero:  "1234567-89.2024.8.26.0100",
		Classe:  "Procedimento Comum",
		Assunto: "Não informado",
		Foro:    "Foro Central",
		Vara:    "1ª Vara Cível",
		Area:    "Cível",
	}

	out := Detalhes(det)
	for _, want := range []string{det.Numero, det.Foro, det.Vara, "Não informado"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}

	if out := Detalhes(nil); !strings.Contains(out, "Não foi possível") {
		t.Fatalf("unexpected nil message: %q", out)
	}
}

func TestStatsTopClasses(t *testing.T) {
	procs := []processo.Processo{
		{Numero: "a", Ano: 2024, Classe: "Execução"},
		{Numero: "b", Ano: 2024, Classe: "Execução"},
		{Numero: "c", Ano: 2024, Classe: "Monitória"},
		{Numero: "d", Ano: 2024, Classe: "Despejo"},
	}

	out := Stats("123456SP", procs)
	if !strings.Contains(out, "Execução: 2") {
		t.Fatalf("missing top class: %q", out)
	}
	// Only the top two classes per year are shown.
	if strings.Count(out, "└") != 2 {
		t.Fatalf("expected 2 class lines, got %q", out)
	}
}
