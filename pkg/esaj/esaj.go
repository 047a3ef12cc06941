// Package esaj drives the TJSP e-SAJ portal: it submits the search-by-OAB
// form, paginates through results, extracts proceedings into typed records
// and caches their links by derived id.
package esaj

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/coder7br/tjscope/internal/utils"
	"github.com/coder7br/tjscope/pkg/cache"
	"github.com/coder7br/tjscope/pkg/processo"
)

const (
	searchURL = "https://esaj.tjsp.jus.br/cpopg/open.do"
	baseURL   = "https://esaj.tjsp.jus.br"

	searchModeSelector = `select[name="cbPesquisa"]`
	searchModeOAB      = "NUMOAB"
	oabInputSelector   = `#campo_NUMOAB:not([disabled])`
	oabInputID         = "#campo_NUMOAB"
	submitSelector     = "#botaoConsultarProcessos"
	nextPageSelector   = ".unj-pagination__next:not(.disabled)"

	maxPages      = 50
	pageTurnPause = 3 * time.Second
)

// ErrNenhumProcesso marks a run that completed without a hard failure but
// found nothing.
var ErrNenhumProcesso = errors.New("nenhum processo encontrado")

type Service struct {
	cache       *cache.DB
	newBrowser  BrowserFactory
	artifactDir string
	sleep       func(time.Duration)
}

func NewService(db *cache.DB, artifactDir string) *Service {
	return &Service{
		cache:       db,
		newBrowser:  NewChromeBrowser,
		artifactDir: artifactDir,
		sleep:       time.Sleep,
	}
}

// ConsultarOAB runs a full query for one OAB number. Navigation and form
// failures are terminal; anything that breaks mid-pagination keeps the
// records gathered so far. progress may be nil.
func (s *Service) ConsultarOAB(ctx context.Context, oab string, progress func(string)) ([]processo.Processo, error) {
	report := func(msg string) {
		if progress != nil {
			progress(msg)
		}
	}

	report("🔍 Acessando o TJSP...")

	b, err := s.newBrowser(ctx)
	if err != nil {
		return nil, fmt.Errorf("erro ao iniciar navegador: %w", err)
	}
	defer b.Close()

	if err := b.Navigate(ctx, searchURL); err != nil {
		report("❌ Erro ao carregar página inicial do TJSP")
		return nil, fmt.Errorf("erro ao acessar TJSP: %w", err)
	}

	report("✅ Site carregado\n📝 Consultando TODOS os processos...")

	if err := s.submitForm(ctx, b, oab); err != nil {
		report("❌ Erro ao preencher formulário")
		return nil, fmt.Errorf("erro no formulário: %w", err)
	}

	report("🔄 Buscando TODOS os processos...\n⏳ Isso pode demorar vários minutos...")

	// Let the first results page settle.
	if err := b.WaitIdle(ctx); err != nil {
		utils.Log.Debug("post-submit idle wait: ", err)
	}
	s.sleep(pageTurnPause)

	todos := s.paginate(ctx, b, oab, report)
	if len(todos) == 0 {
		return nil, ErrNenhumProcesso
	}

	if path, err := s.saveArtifact(todos, oab); err != nil {
		utils.Log.Warn("run artifact not written: ", err)
	} else {
		utils.Log.Debug("run artifact written to ", path)
	}

	report(fmt.Sprintf("🎉 CONSULTA COMPLETA!\n📋 %d processos indexados", len(todos)))
	return todos, nil
}

func (s *Service) submitForm(ctx context.Context, b Browser, oab string) error {
	if err := b.SelectOption(ctx, searchModeSelector, searchModeOAB); err != nil {
		return err
	}
	if err := b.WaitEnabled(ctx, oabInputSelector); err != nil {
		return err
	}
	if err := b.TypeInto(ctx, oabInputID, oab); err != nil {
		return err
	}
	return b.Click(ctx, submitSelector)
}

// paginate walks the result pages. Any failure breaks the loop without
// discarding what was already collected: a truncated result set beats a dead
// run.
func (s *Service) paginate(ctx context.Context, b Browser, oab string, report func(string)) []processo.Processo {
	var todos []processo.Processo

	for page := 1; page <= maxPages; page++ {
		if page%10 == 1 {
			report(fmt.Sprintf("📄 Processando página %d", page))
		}

		html, err := b.Content(ctx)
		if err != nil {
			utils.Log.Warnf("page %d: could not read content: %v", page, err)
			break
		}

		procs, perr := s.parsePagina(ctx, html, oab)
		todos = append(todos, procs...)
		if perr != nil {
			utils.Log.Warnf("page %d: extraction failed: %v", page, perr)
			break
		}

		if len(todos) > 0 && page%5 == 0 {
			report(fmt.Sprintf("✅ %d processos indexados", len(todos)))
		}

		hasNext, err := b.HasElement(ctx, nextPageSelector)
		if err != nil {
			utils.Log.Warnf("page %d: next-page probe failed: %v", page, err)
			break
		}
		if !hasNext {
			report(fmt.Sprintf("🏁 Consulta finalizada!\n📋 Total: %d processos", len(todos)))
			break
		}

		if err := b.Click(ctx, nextPageSelector); err != nil {
			utils.Log.Warnf("page %d: next-page click failed: %v", page, err)
			break
		}
		s.sleep(pageTurnPause)
		if err := b.WaitIdle(ctx); err != nil {
			utils.Log.Debugf("page %d: idle wait: %v", page, err)
		}
	}

	return todos
}

// parsePagina extracts every result entry from one page of rendered markup.
// Entries missing their surrounding list item are skipped; a cache write
// failure is logged but never blocks the run.
func (s *Service) parsePagina(ctx context.Context, html, oab string) ([]processo.Processo, error) {
	if html == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var procs []processo.Processo
	doc.Find("a.linkProcesso").Each(func(_ int, link *goquery.Selection) {
		numero := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		fullLink := href
		if strings.HasPrefix(href, "/") {
			fullLink = baseURL + href
		}

		id := processo.DeriveID(numero, oab)
		if err := s.cache.Save(ctx, id, numero, fullLink); err != nil {
			utils.Log.Warn("link cache save failed: ", err)
		}

		li := link.Closest("li")
		if li.Length() == 0 {
			return
		}

		procs = append(procs, processo.Processo{
			ID:               id,
			Numero:           numero,
			Classe:           fieldText(li, "div.classeProcesso"),
			Assunto:          fieldText(li, "div.assuntoPrincipalProcesso"),
			Ano:              processo.ExtractYear(numero),
			DataMovimentacao: fieldText(li, "div.dataLocalDistribuicaoProcesso"),
			Advogado:         fieldText(li, "div.nomeParte"),
		})
	})

	return procs, nil
}

func fieldText(sel *goquery.Selection, selector string) string {
	div := sel.Find(selector)
	if div.Length() == 0 {
		return "N/A"
	}
	text := strings.TrimSpace(div.First().Text())
	if text == "" {
		return "N/A"
	}
	return text
}

type runArtifact struct {
	OAB             string                      `json:"oab"`
	DataConsulta    string                      `json:"data_consulta"`
	TotalProcessos  int                         `json:"total_processos"`
	ProcessosPorAno map[int][]processo.Processo `json:"processos_por_ano"`
}

// saveArtifact writes one dated JSON document per completed run, grouped by
// year.
func (s *Service) saveArtifact(procs []processo.Processo, oab string) (string, error) {
	if err := os.MkdirAll(s.artifactDir, 0o755); err != nil {
		return "", err
	}

	porAno := make(map[int][]processo.Processo)
	for _, p := range procs {
		porAno[p.Ano] = append(porAno[p.Ano], p)
	}

	data := runArtifact{
		OAB:             oab,
		DataConsulta:    time.Now().Format(time.RFC3339),
		TotalProcessos:  len(procs),
		ProcessosPorAno: porAno,
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("processos_%s_%s.json", oab, time.Now().Format("20060102_150405"))
	path := filepath.Join(s.artifactDir, name)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
