// Package processo holds the domain types for TJSP proceedings and the pure
// helpers that derive ids, years and groupings from them.
package processo

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Processo is a single proceeding found for an OAB query.
type Processo struct {
	ID               string `json:"id"`
	Numero           string `json:"numero"`
	Classe           string `json:"classe"`
	Assunto          string `json:"assunto"`
	Ano              int    `json:"ano"`
	DataMovimentacao string `json:"data_movimentacao"`
	Advogado         string `json:"advogado"`
}

// Detalhes carries the fields extracted from a proceeding's detail page.
type Detalhes struct {
	Numero  string
	Classe  string
	Assunto string
	Foro    string
	Vara    string
	Area    string
}

// YearGroup is one year's worth of proceedings, insertion order preserved.
type YearGroup struct {
	Ano       int
	Processos []Processo
}

var anoRe = regexp.MustCompile(`\.(\d{4})\.`)

// DeriveID returns the stable short id for a (numero, oab) pair.
func DeriveID(numero, oab string) string {
	sum := md5.Sum([]byte(numero + "_" + oab))
	return hex.EncodeToString(sum[:])[:10]
}

// ExtractYear pulls the 4-digit year segment out of a proceeding number.
// Returns 0 when the number has no recognizable year.
func ExtractYear(numero string) int {
	m := anoRe.FindStringSubmatch(numero)
	if m == nil {
		return 0
	}
	ano, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return ano
}

// GroupByYear groups proceedings by year, newest year first. Order within a
// year follows the input order.
func GroupByYear(procs []Processo) []YearGroup {
	byYear := make(map[int][]Processo)
	var years []int
	for _, p := range procs {
		if _, seen := byYear[p.Ano]; !seen {
			years = append(years, p.Ano)
		}
		byYear[p.Ano] = append(byYear[p.Ano], p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	groups := make([]YearGroup, 0, len(years))
	for _, ano := range years {
		groups = append(groups, YearGroup{Ano: ano, Processos: byYear[ano]})
	}
	return groups
}

// BuscarPorNumero returns every proceeding whose number contains the fragment.
func BuscarPorNumero(procs []Processo, fragment string) []Processo {
	var out []Processo
	for _, p := range procs {
		if strings.Contains(p.Numero, fragment) {
			out = append(out, p)
		}
	}
	return out
}
