package analysis

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

const trendSystemPrompt = `Ты аналитик, который отслеживает тренды в новостях и публикациях сообществ.
Отвечай на русском языке обычным текстом. Не используй markdown-разметку, звездочки, решетки и эмодзи.
Списки оформляй нумерацией или дефисами. Опирайся только на переданные материалы и всегда указывай ссылки на источники.`

const digestSystemPrompt = `Ты редактор отраслевого новостного дайджеста.
Отвечай на русском языке обычным текстом без markdown-разметки.
Эмодзи используй только как маркеры разделов, если этого требует формат ответа. Опирайся только на переданные материалы.`

// promptData fills every template.
type promptData struct {
	Query     string
	Theme     string
	Category  string
	Period    string
	Materials string
	Parts     string
	Filtered  string
}

// PromptSet holds the templates of one analysis mode.
type PromptSet struct {
	System    string
	Chunk     *template.Template
	Synthesis *template.Template
	// Filter and Analysis form the two-pass single-chunk path of trend queries.
	Filter   *template.Template
	Analysis *template.Template
}

var themeTemplate = template.Must(template.New("theme").Parse(
	`Пользователь ищет материалы по запросу в категории «{{.Category}}».
Сформулируй тему поиска одним коротким предложением, пригодным для семантического поиска. Ответь только этим предложением, без пояснений.
Запрос:
{{.Query}}`))

var trendPrompts = PromptSet{
	System: trendSystemPrompt,
	Filter: template.Must(template.New("trend_filter").Parse(
		`Запрос пользователя: {{.Query}}
Тема: {{.Theme}}
Категория: {{.Category}}

Ниже перечислены найденные материалы. Оставь только те, что действительно относятся к запросу и категории, остальные отбрось.
Для каждого оставленного материала выпиши ключевой факт и ссылку на источник. Не добавляй выводов.

{{.Materials}}`)),
	Analysis: template.Must(template.New("trend_analysis").Parse(
		`Запрос пользователя: {{.Query}}
Тема: {{.Theme}}
Категория: {{.Category}}

Отобранные материалы:
{{.Filtered}}

Составь отчет о трендах по запросу. Для каждого значимого события напиши блок:
• Событие: что произошло
• Ссылка: источник
• Влияние: как это меняет рынок или аудиторию категории
• Рекомендации: что стоит сделать
В конце дай выводы для менеджеров категории. Учитывай только то, что относится к запросу.`)),
	Chunk: template.Must(template.New("trend_chunk").Parse(
		`Запрос пользователя: {{.Query}}
Тема: {{.Theme}}
Категория: {{.Category}}

Это часть найденных материалов. Отбрось материалы, не связанные с запросом или категорией.
По остальным выпиши пары «факт — ссылка на источник». Не делай общих выводов, они будут сделаны позже.

{{.Materials}}`)),
	Synthesis: template.Must(template.New("trend_synthesis").Parse(
		`Запрос пользователя: {{.Query}}
Тема: {{.Theme}}
Категория: {{.Category}}

Ниже результаты анализа отдельных частей материалов в исходном порядке:
{{.Parts}}

Объедини их в один отчет, убрав повторы. Для каждого значимого события напиши блок:
• Событие: что произошло
• Ссылка: источник
• Влияние: как это меняет рынок или аудиторию категории
• Рекомендации: что стоит сделать
В конце дай выводы для менеджеров категории, относящиеся только к исходному запросу.`)),
}

var digestChunkTemplate = template.Must(template.New("digest_chunk").Parse(
	`Категория: {{.Category}}
Период: {{.Period}}

Выдели главные новости из материалов ниже. Для каждой укажи:
- заголовок
- краткое описание
- влияние на индустрию
- реакцию сообщества
- ссылку на источник

{{.Materials}}`))

var digestSynthesisTemplate = template.Must(template.New("digest_synthesis").Parse(
	`Категория: {{.Category}}
Период: {{.Period}}

Ниже главные новости, отобранные из частей материалов:
{{.Parts}}

Собери из них один дайджест без повторов строго в формате:
📆 Дайджест «{{.Category}}» за {{.Period}}

🎮 Главные события
Для каждого события:
📌 Заголовок
📝 Что произошло
💡 Влияние на индустрию
👥 Реакция сообщества
🔗 Ссылка

📊 Общие тренды
🧠 Анализ
🔮 Прогноз`))

var digestPrompts = PromptSet{
	System:    digestSystemPrompt,
	Chunk:     digestChunkTemplate,
	Synthesis: digestSynthesisTemplate,
}

// PromptsFor returns the prompt set of a mode.
func PromptsFor(mode domain.AnalysisMode) PromptSet {
	if mode.IsDigest() {
		return digestPrompts
	}

	return trendPrompts
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}

	return buf.String(), nil
}

// renderMaterials lists materials with their full text and URL.
func renderMaterials(materials []domain.Material) string {
	var sb strings.Builder

	for i, m := range materials {
		fmt.Fprintf(&sb, "Материал %d\n", i+1)

		if m.Title != "" {
			fmt.Fprintf(&sb, "Заголовок: %s\n", m.Title)
		}

		if m.Date != "" {
			fmt.Fprintf(&sb, "Дата: %s\n", m.Date)
		}

		fmt.Fprintf(&sb, "Ссылка: %s\nТекст: %s\n\n", m.URL, strings.TrimSpace(m.Text))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// renderParts joins partial analyses in chunk order.
func renderParts(partials []string) string {
	var sb strings.Builder

	for i, p := range partials {
		fmt.Fprintf(&sb, "Часть %d:\n%s\n\n", i+1, strings.TrimSpace(p))
	}

	return strings.TrimRight(sb.String(), "\n")
}
