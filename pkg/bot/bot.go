// Package bot routes telegram messages to the license store, session
// registry and scraping pipeline. Replies longer than the transport limit
// are chunked.
package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/coder7br/tjscope/internal/utils"
	"github.com/coder7br/tjscope/pkg/esaj"
	"github.com/coder7br/tjscope/pkg/format"
	"github.com/coder7br/tjscope/pkg/license"
	"github.com/coder7br/tjscope/pkg/processo"
	"github.com/coder7br/tjscope/pkg/session"
)

const (
	// Telegram rejects messages over 4096 chars; we chunk well under it.
	chunkSize = 4000
)

var (
	oabRe  = regexp.MustCompile(`^\d{6}[A-Z]{2}$`)
	yearRe = regexp.MustCompile(`^/(\d{4})$`)
)

type Bot struct {
	api      *tgbotapi.BotAPI
	licenses *license.Store
	sessions *session.Registry
	service  *esaj.Service

	// Per-(user, chat) locks: all handling for one key is serialized, so a
	// running query never interleaves with browse commands on its session.
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// send is swappable so dispatch logic is testable offline.
	send func(chatID int64, text string)
}

func New(token string, licenses *license.Store, sessions *session.Registry, service *esaj.Service) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		api:      api,
		licenses: licenses,
		sessions: sessions,
		service:  service,
	}
	b.send = b.sendChunked
	return b, nil
}

// Run consumes long-poll updates until ctx is done. Each message is handled
// on its own goroutine; HandleText serializes them per (user, chat) key.
func (b *Bot) Run(ctx context.Context) error {
	utils.Log.Infof("bot authorized as @%s", b.api.Self.UserName)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil || msg.Text == "" {
				continue
			}
			username := msg.From.UserName
			if username == "" {
				username = "Anônimo"
			}
			go b.HandleText(ctx, msg.Chat.ID, username, msg.Text)
		}
	}
}

func (b *Bot) sendChunked(chatID int64, text string) {
	for _, part := range SplitMessage(text, chunkSize) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.api.Send(msg); err != nil {
			utils.Log.Warn("send failed: ", err)
		}
	}
}

// SplitMessage cuts text into chunks no longer than limit runes.
func SplitMessage(text string, limit int) []string {
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}
	var parts []string
	for len(r) > 0 {
		n := limit
		if n > len(r) {
			n = len(r)
		}
		parts = append(parts, string(r[:n]))
		r = r[n:]
	}
	return parts
}

// HandleText dispatches one inbound message. Messages for the same
// (username, chat) key run one at a time; other keys are not blocked.
func (b *Bot) HandleText(ctx context.Context, chatID int64, username, text string) {
	l := b.sessionLock(username, chatID)
	l.Lock()
	defer l.Unlock()

	text = b.stripMention(strings.TrimSpace(text))

	if !strings.HasPrefix(text, "/") {
		b.handlePlain(ctx, chatID, username, text)
		return
	}

	switch {
	case text == "/start":
		b.handleStart(chatID, username)
	case text == "/admin" || text == "/giststatus" || text == "/sync" ||
		text == "/licencas" || strings.HasPrefix(text, "/addlicenca") ||
		strings.HasPrefix(text, "/revogar"):
		b.handleAdmin(chatID, username, text)
	default:
		b.handleSessionCommand(ctx, chatID, username, text)
	}
}

func (b *Bot) sessionLock(username string, chatID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.locks == nil {
		b.locks = make(map[string]*sync.Mutex)
	}
	k := fmt.Sprintf("%s_%d", username, chatID)
	l, ok := b.locks[k]
	if !ok {
		l = &sync.Mutex{}
		b.locks[k] = l
	}
	return l
}

// stripMention removes an "@botname" suffix from the command token so both
// "/todos" and "/todos@tjscope_bot" work in groups.
func (b *Bot) stripMention(text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	parts := strings.SplitN(text, " ", 2)
	if at := strings.Index(parts[0], "@"); at != -1 {
		parts[0] = parts[0][:at]
	}
	return strings.Join(parts, " ")
}

// handlePlain treats non-command text as an OAB query attempt.
func (b *Bot) handlePlain(ctx context.Context, chatID int64, username, text string) {
	oab := strings.ToUpper(text)
	if !oabRe.MatchString(oab) {
		b.send(chatID, "❌ *Comando inválido*\n\n"+
			"💡 *Como usar:*\n"+
			"1. Digite uma OAB (123456SP)\n"+
			"2. Aguarde a consulta completa\n"+
			"3. Use comandos como /2024 ou /buscar\n\n"+
			"📋 *Comandos:*\n/start - Ajuda\n/licenca - Info da licença\n/limpar - Encerrar sessão")
		return
	}

	ok, licMsg := b.licenses.Check(username)
	if !ok {
		b.send(chatID, "❌ *Licença necessária!*\n"+licMsg)
		return
	}

	b.runConsulta(ctx, chatID, username, oab)
}

func (b *Bot) runConsulta(ctx context.Context, chatID int64, username, oab string) {
	// A new query always starts from a clean session.
	b.sessions.Clear(username, chatID)
	s := b.sessions.Create(username, chatID, oab)

	b.send(chatID, fmt.Sprintf(
		"🔍 *CONSULTANDO OAB:* %s\n%s: @%s\n💬 *Sessão:* Privada\n⏳ Isso pode demorar vários minutos...",
		oab, b.userHeader(username), username))

	progress := func(msg string) { b.send(chatID, msg) }
	procs, err := b.service.ConsultarOAB(ctx, oab, progress)

	if errors.Is(err, esaj.ErrNenhumProcesso) || (err == nil && len(procs) == 0) {
		b.sessions.Clear(username, chatID)
		b.send(chatID, "❌ Nenhum processo encontrado para esta OAB")
		return
	}
	if err != nil {
		b.sessions.Clear(username, chatID)
		b.send(chatID, fmt.Sprintf("❌ *Erro na consulta:* %v", err))
		return
	}

	s.Processos = procs
	b.send(chatID, b.summaryMessage(username, oab, procs))
}

func (b *Bot) summaryMessage(username, oab string, procs []processo.Processo) string {
	groups := processo.GroupByYear(procs)

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎉 *CONSULTA COMPLETA!*\n\n")
	fmt.Fprintf(&sb, "📋 *RESUMO - %s*\n", oab)
	fmt.Fprintf(&sb, "👤 *Usuário:* @%s\n", username)
	fmt.Fprintf(&sb, "📊 *Total:* %d processos\n", len(procs))
	if len(groups) > 0 {
		fmt.Fprintf(&sb, "📅 *Período:* %d - %d\n", groups[len(groups)-1].Ano, groups[0].Ano)
	}
	sb.WriteString("\n🚀 *COMANDOS DISPONÍVEIS:*\n")

	for i, g := range groups {
		if i == 5 {
			break
		}
		fmt.Fprintf(&sb, "• `/%d` - %d processos\n", g.Ano, len(g.Processos))
	}
	sb.WriteString("• `/todos` - Ver resumo geral\n" +
		"• `/nums` - Apenas números\n" +
		"• `/buscar NÚMERO` - Buscar processo\n" +
		"• `/stats` - Estatísticas\n" +
		"• `/licenca` - Info da licença\n" +
		"• `/limpar` - Encerrar sessão\n")

	if b.licenses.IsAdmin(username) {
		sb.WriteString("\n👑 *COMANDOS ADMIN:*\n" +
			"• `/addlicenca username dias` - Adicionar licença\n" +
			"• `/revogar username` - Revogar licença\n" +
			"• `/licencas` - Listar licenças\n" +
			"• `/giststatus` - Status do Gist\n" +
			"• `/sync` - Sincronizar licenças\n")
	}
	return sb.String()
}

func (b *Bot) handleStart(chatID int64, username string) {
	ok, licMsg := b.licenses.Check(username)
	if !ok {
		b.send(chatID, "❌ *ACESSO NEGADO*\n\n"+licMsg+"\n\n"+
			"💡 *Sistema de Licenças:*\n"+
			"• Acesso por username (@)\n"+
			"• Licenças semanais\n"+
			"• Controle individual\n\n"+
			"📞 *Contate o administrador para obter uma licença*")
		return
	}

	var status string
	if b.licenses.IsAdmin(username) {
		status = "🎯 *Acesso Ilimitado*"
	} else if info := b.licenses.Info(username); info != nil {
		status = fmt.Sprintf("📅 *Expira em:* %d dias (%s)", info.DaysLeft, info.ExpiryDate)
	}

	b.send(chatID, fmt.Sprintf(
		"👋 *BOT CONSULTOR TJSP*\n\n%s\n✅ *Licença Ativa:* @%s\n%s\n\n"+
			"⚡ *Como usar:*\n"+
			"1. Digite a OAB (ex: 123456SP)\n"+
			"2. Aguarde a consulta COMPLETA\n"+
			"3. Use os comandos abaixo\n\n"+
			"📋 *Comandos disponíveis:*\n"+
			"• `/2024` - Ver processos de 2024\n"+
			"• `/todos` - Ver todos os processos\n"+
			"• `/nums` - Apenas números\n"+
			"• `/buscar 123456` - Buscar por número\n"+
			"• `/link_ID` - Obter link\n"+
			"• `/detalhes_ID` - Ver detalhes\n"+
			"• `/stats` - Estatísticas\n"+
			"• `/licenca` - Info da licença\n"+
			"• `/limpar` - Encerrar sessão",
		b.userHeader(username), username, status))
}

func (b *Bot) userHeader(username string) string {
	if b.licenses.IsAdmin(username) {
		return "👑 *Admin*"
	}
	return "👤 *Licenciado*"
}

// handleSessionCommand covers everything that browses an active session.
func (b *Bot) handleSessionCommand(ctx context.Context, chatID int64, username, text string) {
	ok, licMsg := b.licenses.Check(username)
	if !ok {
		b.send(chatID, "❌ *Licença necessária!*\n"+licMsg)
		return
	}

	s := b.sessions.Get(username, chatID)
	if s == nil {
		b.send(chatID, "❌ *Nenhuma sessão ativa!*\nDigite uma OAB para iniciar uma consulta\nEx: `123456SP`")
		return
	}

	switch {
	case text == "/licenca":
		b.sendLicencaInfo(chatID, username)

	case text == "/limpar":
		b.sessions.Clear(username, chatID)
		b.send(chatID, "🗑 *Sessão encerrada!*\nDigite uma nova OAB para nova consulta")

	case text == "/todos":
		b.send(chatID, b.sessionHeader(username, s)+format.Todos(s.Processos))

	case text == "/nums":
		b.send(chatID, b.sessionHeader(username, s)+format.Nums(s.Processos))

	case text == "/stats":
		b.send(chatID, format.Stats(s.OAB, s.Processos))

	case strings.HasPrefix(text, "/buscar"):
		frag := strings.TrimSpace(strings.TrimPrefix(text, "/buscar"))
		if frag == "" {
			b.send(chatID, "❌ *Uso correto:* `/buscar NÚMERO`\nEx: `/buscar 123456`")
			return
		}
		b.send(chatID, b.sessionHeader(username, s)+format.Busca(processo.BuscarPorNumero(s.Processos, frag), frag))

	case strings.HasPrefix(text, "/link_"):
		b.sendLink(ctx, chatID, username, strings.TrimPrefix(text, "/link_"))

	case strings.HasPrefix(text, "/detalhes_"):
		b.sendDetalhes(ctx, chatID, username, strings.TrimPrefix(text, "/detalhes_"))

	default:
		if m := yearRe.FindStringSubmatch(text); m != nil {
			ano, _ := strconv.Atoi(m[1])
			b.sendAno(chatID, b.sessionHeader(username, s), s.Processos, ano)
			return
		}
		b.send(chatID, "❌ *Comando não reconhecido*\nUse /start para ver os comandos disponíveis")
	}
}

func (b *Bot) sessionHeader(username string, s *session.Session) string {
	return fmt.Sprintf("%s: @%s\n🔍 *OAB:* %s\n\n", b.userHeader(username), username, s.OAB)
}

func (b *Bot) sendAno(chatID int64, header string, procs []processo.Processo, ano int) {
	for _, g := range processo.GroupByYear(procs) {
		if g.Ano == ano {
			b.send(chatID, header+format.Ano(g.Processos, ano))
			return
		}
	}
	b.send(chatID, fmt.Sprintf("❌ Nenhum processo encontrado para %d", ano))
}

func (b *Bot) sendLicencaInfo(chatID int64, username string) {
	info := b.licenses.Info(username)
	if info == nil {
		b.send(chatID, "❌ Licença não encontrada")
		return
	}
	if info.Admin {
		b.send(chatID, fmt.Sprintf(
			"👑 *INFORMAÇÕES DA LICENÇA - ADMIN*\n\n"+
				"👤 *Usuário:* @%s\n🎯 *Tipo:* Administrador\n⚡ *Status:* Acesso Ilimitado",
			username))
		return
	}
	b.send(chatID, fmt.Sprintf(
		"📄 *INFORMAÇÕES DA LICENÇA*\n\n"+
			"👤 *Usuário:* @%s\n"+
			"📅 *Criada em:* %s\n"+
			"⏰ *Expira em:* %s\n"+
			"📊 *Dias restantes:* %d\n"+
			"🕒 *Duração:* %d dias\n"+
			"✅ *Status:* ATIVA",
		username, info.CreatedAt, info.ExpiryDate, info.DaysLeft, info.DurationDays))
}

func (b *Bot) sendLink(ctx context.Context, chatID int64, username, id string) {
	link, numero, err := b.service.LinkInfo(ctx, id)
	if err != nil {
		b.send(chatID, "❌ ID não encontrado no cache. Execute uma nova consulta.")
		return
	}
	b.send(chatID, fmt.Sprintf(
		"🔗 *LINK DO PROCESSO*\n\n%s: @%s\n🔢 *Número:* %s\n🆔 *ID:* `%s`\n🔗 %s\n\n"+
			"📋 Use `/detalhes_%s` para ver mais informações",
		b.userHeader(username), username, numero, id, link, id))
}

func (b *Bot) sendDetalhes(ctx context.Context, chatID int64, username, id string) {
	b.send(chatID, "🔍 *Obtendo detalhes do processo...*")

	det, err := b.service.Detalhes(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, esaj.ErrIDDesconhecido):
			b.send(chatID, "❌ Processo não encontrado no cache. Execute uma nova consulta.")
		case errors.Is(err, esaj.ErrProcessoNaoLocalizado):
			b.send(chatID, "❌ Processo não encontrado no TJSP.")
		default:
			b.send(chatID, fmt.Sprintf("❌ *Erro ao obter detalhes:* %v", err))
		}
		return
	}
	b.send(chatID, fmt.Sprintf("%s: @%s\n\n%s", b.userHeader(username), username, format.Detalhes(det)))
}

func (b *Bot) handleAdmin(chatID int64, username, text string) {
	if !b.licenses.IsAdmin(username) {
		b.send(chatID, "❌ *Acesso restrito a administradores*\n\n"+
			"💡 Comandos disponíveis para você:\n"+
			"• `/start` - Iniciar bot\n"+
			"• `/licenca` - Ver sua licença\n"+
			"• Digite uma OAB para consultar processos")
		return
	}

	switch {
	case strings.HasPrefix(text, "/addlicenca"):
		b.adminAdd(chatID, text)
	case strings.HasPrefix(text, "/revogar"):
		b.adminRevoke(chatID, text)
	case text == "/licencas":
		b.adminList(chatID)
	case text == "/giststatus":
		b.adminStatus(chatID)
	case text == "/sync":
		b.adminSync(chatID)
	case text == "/admin":
		b.send(chatID, "👑 *PAINEL ADMINISTRATIVO*\n\n"+
			"📋 *Comandos disponíveis:*\n"+
			"• `/addlicenca username dias` - Adicionar licença\n"+
			"• `/revogar username` - Revogar licença\n"+
			"• `/licencas` - Listar licenças ativas\n"+
			"• `/giststatus` - Status do Gist\n"+
			"• `/sync` - Sincronizar licenças\n\n"+
			"💡 *Exemplos:*\n`/addlicenca joaosilva 7`\n`/addlicenca maria 30`\n`/revogar joaosilva`")
	default:
		b.send(chatID, "❌ *Comando admin não reconhecido*\nUse `/admin` para ver comandos disponíveis")
	}
}

func (b *Bot) adminAdd(chatID int64, text string) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		b.send(chatID, "❌ *Uso correto:* `/addlicenca username [dias]`\nEx: `/addlicenca joaosilva 7`")
		return
	}

	target := strings.TrimPrefix(parts[1], "@")
	days := license.DefaultDays
	if len(parts) > 2 {
		d, err := strconv.Atoi(parts[2])
		if err != nil || d <= 0 {
			b.send(chatID, "❌ *Uso correto:* `/addlicenca username [dias]`\nEx: `/addlicenca joaosilva 7`")
			return
		}
		days = d
	}

	expiry := b.licenses.Add(target, days)
	b.send(chatID, fmt.Sprintf(
		"✅ *Licença adicionada com sucesso!*\n\n"+
			"👤 *Usuário:* @%s\n📅 *Duração:* %d dias\n⏰ *Expira em:* %s\n✅ *Status:* ATIVA",
		target, days, expiry.Format("02/01/2006 15:04")))
}

func (b *Bot) adminRevoke(chatID int64, text string) {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		b.send(chatID, "❌ *Uso correto:* `/revogar username`\nEx: `/revogar joaosilva`")
		return
	}

	target := strings.TrimPrefix(parts[1], "@")
	if b.licenses.Revoke(target) {
		b.send(chatID, fmt.Sprintf(
			"✅ *Licença revogada com sucesso!*\n\n👤 *Usuário:* @%s\n🚫 *Status:* ACESSO REVOGADO", target))
		return
	}
	b.send(chatID, fmt.Sprintf("❌ Licença não encontrada para @%s", target))
}

func (b *Bot) adminList(chatID int64) {
	active := b.licenses.ListActive()
	if len(active) == 0 {
		b.send(chatID, "ℹ *Nenhuma licença ativa no momento*")
		return
	}

	var sb strings.Builder
	sb.WriteString("📄 *LICENÇAS ATIVAS NO SISTEMA:*\n\n")
	for username, info := range active {
		fmt.Fprintf(&sb, "👤 @%s\n   📅 Expira: %s\n   ⏰ Dias restantes: %d\n\n",
			username, info.ExpiryDate, info.DaysLeft)
	}
	b.send(chatID, sb.String())
}

func (b *Bot) adminStatus(chatID int64) {
	stats := b.licenses.GetStats()

	configured := "❌ Não"
	if stats.GistConfigured {
		configured = "✅ Sim"
	}
	b.send(chatID, fmt.Sprintf(
		"🔧 *STATUS DO SISTEMA DE LICENÇAS*\n\n"+
			"📊 *Licenças totais:* %d\n"+
			"✅ *Licenças ativas:* %d\n"+
			"❌ *Licenças expiradas:* %d\n"+
			"🔗 *Gist configurado:* %s\n"+
			"👑 *Administradores:* %d",
		stats.Total, stats.Active, stats.Expired, configured, stats.Admins))
}

func (b *Bot) adminSync(chatID int64) {
	b.send(chatID, "🔄 Sincronizando licenças com Gist...")

	if !b.licenses.ForceSync() {
		b.send(chatID, "❌ *Falha na sincronização!*\nVerifique as configurações do Gist.")
		return
	}

	stats := b.licenses.GetStats()
	b.send(chatID, fmt.Sprintf(
		"✅ *Sincronização concluída!*\n\n📊 Licenças carregadas: %d\n✅ Ativas: %d",
		stats.Total, stats.Active))
}
