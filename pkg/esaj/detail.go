package esaj

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/coder7br/tjscope/pkg/processo"
)

const detailSentinel = "Não informado"

var (
	// ErrIDDesconhecido: the short id was never cached (or the cache was lost).
	ErrIDDesconhecido = errors.New("ID não encontrado no cache")
	// ErrProcessoNaoLocalizado: the portal itself reports the proceeding as
	// missing.
	ErrProcessoNaoLocalizado = errors.New("processo não encontrado no TJSP")
)

var notFoundMarkers = []string{
	"Número não localizado",
	"Não existem informações",
}

// Field selectors tried in order; the first one yielding text wins.
var detailSelectors = map[string][]string{
	"numero":  {"#numeroProcesso", ".header__content__title"},
	"classe":  {".classeProcesso", `[id*="classe"]`},
	"assunto": {".assuntoProcesso", `[id*="assunto"]`},
	"foro":    {".foroProcesso", `[id*="foro"]`},
	"vara":    {".varaProcesso", `[id*="vara"]`},
	"area":    {".areaProcesso", `[id*="area"]`},
}

// LinkInfo resolves a cached id into its portal link and proceeding number.
func (s *Service) LinkInfo(ctx context.Context, id string) (link, numero string, err error) {
	link, ok, err := s.cache.Link(ctx, id)
	if err != nil {
		return "", "", err
	}
	if !ok || !strings.HasPrefix(link, "http") {
		return "", "", ErrIDDesconhecido
	}
	numero, ok, err = s.cache.Numero(ctx, id)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", ErrIDDesconhecido
	}
	return link, numero, nil
}

// Detalhes opens a cached proceeding's page and extracts its header fields.
func (s *Service) Detalhes(ctx context.Context, id string) (*processo.Detalhes, error) {
	link, ok, err := s.cache.Link(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok || !strings.HasPrefix(link, "http") {
		return nil, ErrIDDesconhecido
	}

	b, err := s.newBrowser(ctx)
	if err != nil {
		return nil, fmt.Errorf("erro ao iniciar navegador: %w", err)
	}
	defer b.Close()

	if err := b.Navigate(ctx, link); err != nil {
		return nil, fmt.Errorf("erro ao carregar página do processo: %w", err)
	}
	s.sleep(3 * time.Second)

	html, err := b.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler página do processo: %w", err)
	}

	for _, marker := range notFoundMarkers {
		if strings.Contains(html, marker) {
			return nil, ErrProcessoNaoLocalizado
		}
	}

	return parseDetalhes(html)
}

func parseDetalhes(html string) (*processo.Detalhes, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	return &processo.Detalhes{
		Numero:  firstText(doc, detailSelectors["numero"]),
		Classe:  firstText(doc, detailSelectors["classe"]),
		Assunto: firstText(doc, detailSelectors["assunto"]),
		Foro:    firstText(doc, detailSelectors["foro"]),
		Vara:    firstText(doc, detailSelectors["vara"]),
		Area:    firstText(doc, detailSelectors["area"]),
	}, nil
}

// firstText tries each selector in order, returning the sentinel when none
// matches non-empty text.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return detailSentinel
}
