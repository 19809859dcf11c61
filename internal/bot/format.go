package bot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"finbot/internal/core"
)

const usageText = "👋 Olá! Eu sou seu Assistente Financeiro.\n\n" +
	"Use /registrar para adicionar um gasto ou receita.\n" +
	"Exemplo: /registrar gasto 25 mercado\n\n" +
	"Use /novo para registrar escolhendo tipo e categoria por botões.\n" +
	"Use /resumo para ver seus gastos recentes.\n" +
	"Use /saldo para ver seu saldo atual.\n" +
	"Use /ultimas para ver e apagar suas últimas transações.\n" +
	"Use /planilha para exportar uma planilha com todos os dados registrados.\n" +
	"Use /painel para acessar seu painel com gráficos online."

// Replies shown to users.
const (
	msgRegisterUsage   = "⚠️ Formato inválido. Use:\n/registrar [gasto|receita] [valor] [categoria]"
	msgInvalidAmount   = "⚠️ Valor inválido. Use um número. Ex: /registrar gasto 10 mercado"
	msgInvalidKind     = "⚠️ Tipo inválido. Use gasto ou receita."
	msgInvalidCategory = "⚠️ Categoria inválida. Use até 64 caracteres."
	msgNoTransactions  = "📭 Nenhuma transação registrada ainda."
	msgNothingToExport = "📭 Você ainda não tem transações registradas para exportar."
	msgNotFound        = "❓ Transação não encontrada."
	msgUnknownCommand  = "🤔 Comando não reconhecido. Use /ajuda para ver os comandos."
	msgUnknownAction   = "🤔 Ação desconhecida."
	msgIdleText        = "Use /novo para registrar pelo menu ou /ajuda para ver os comandos."
	msgNoFlow          = "Nenhum registro em andamento. Use /novo para começar."
	msgCancelled       = "❌ Registro cancelado."
	msgNothingToCancel = "Nada para cancelar."
	msgChooseKind      = "Escolha o tipo da transação:"
	msgChooseCategory  = "Escolha a categoria:"
	msgAskCategoryName = "✏️ Digite o nome da categoria:"
	msgAskAmount       = "💲 Informe o valor (ex: 25,50):"
	msgFlowBadAmount   = "⚠️ Valor inválido. Informe um número positivo, ex: 25,50"
	msgUseButtons      = "Use os botões acima para continuar ou /cancelar."
	msgInternalError   = "😕 Não consegui concluir agora. Tente novamente em instantes."

	exportFileName = "transacoes.csv"
)

// Callback data prefixes.
const (
	cbKind           = "kind:"
	cbCategory       = "cat:"
	cbCustomCategory = "cat:*"
	cbDelete         = "del:"
)

// categoryChoices are offered as buttons in the interactive flow.
var categoryChoices = map[core.Kind][]string{
	core.KindExpense: {"mercado", "alimentação", "transporte", "moradia", "saúde", "lazer"},
	core.KindIncome:  {"salário", "freelance", "investimentos", "presente"},
}

// FormatBRL renders an amount as R$ with two decimals.
func FormatBRL(m core.Money) string {
	return "R$" + m.String()
}

// FormatSummary renders grouped totals under a Markdown title.
func FormatSummary(title string, totals []core.CategoryTotal) string {
	var b strings.Builder
	b.WriteString("📊 *")
	b.WriteString(title)
	b.WriteString(":*\n")
	for _, t := range totals {
		fmt.Fprintf(&b, "%s %s - %s: %s\n",
			kindEmoji(t.Kind),
			capitalize(t.Kind.Label()),
			escapeMarkdown(capitalize(t.Category)),
			FormatBRL(t.Total))
	}
	return b.String()
}

// SummaryTitle is the heading of the on-demand summary.
func SummaryTitle(windowDays int) string {
	return fmt.Sprintf("Resumo das transações nos últimos %d dias", windowDays)
}

// FormatBalance renders a balance with a green or red marker.
func FormatBalance(lead string, balance core.Money) string {
	marker := "🟢"
	if balance.IsNegative() {
		marker = "🔴"
	}
	return fmt.Sprintf("%s %s: %s", marker, lead, FormatBRL(balance))
}

func formatRecorded(tx core.Transaction) string {
	return fmt.Sprintf("✅ %s de %s em '%s' registrado com sucesso!",
		capitalize(tx.Kind.Label()), FormatBRL(tx.Amount), tx.Category)
}

func formatBudgetWarning(percent int64) string {
	return fmt.Sprintf("⚠️ Atenção! Seus gastos neste mês já atingiram %d%% da sua receita.\n"+
		"Considere reduzir os gastos para evitar ultrapassar seu orçamento.", percent)
}

func formatRecentLine(tx core.Transaction) string {
	return fmt.Sprintf("#%d %s %s %s %s %s",
		tx.ID,
		tx.Date.Format("02/01"),
		kindEmoji(tx.Kind),
		capitalize(tx.Kind.Label()),
		FormatBRL(tx.Amount),
		escapeMarkdown(tx.Category))
}

// dashboardLink appends the caller's id to the dashboard base URL.
func dashboardLink(base string, userID int64) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse dashboard url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", strconv.FormatInt(userID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func kindEmoji(k core.Kind) string {
	if k == core.KindExpense {
		return "💸"
	}
	return "💰"
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown protects user text inside legacy Markdown messages.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func kindButtons() [][]Button {
	return [][]Button{{
		{Text: "💸 Gasto", Data: cbKind + string(core.KindExpense)},
		{Text: "💰 Receita", Data: cbKind + string(core.KindIncome)},
	}}
}

// categoryButtons lays the choices for kind out two per row, followed by
// the custom category button.
func categoryButtons(kind core.Kind) [][]Button {
	var rows [][]Button
	choices := categoryChoices[kind]
	for i := 0; i < len(choices); i += 2 {
		row := []Button{{Text: capitalize(choices[i]), Data: cbCategory + choices[i]}}
		if i+1 < len(choices) {
			row = append(row, Button{Text: capitalize(choices[i+1]), Data: cbCategory + choices[i+1]})
		}
		rows = append(rows, row)
	}
	return append(rows, []Button{{Text: "✏️ Outra", Data: cbCustomCategory}})
}
