// Package messages holds every user-facing string, keyed by locale.
package messages

import (
	"fmt"

	"golang.org/x/text/language"
)

// Key identifies a user-facing message.
type Key string

const (
	Welcome        Key = "welcome"
	Help           Key = "help"
	CommandStart   Key = "command_start"
	CommandHelp    Key = "command_help"
	CommandHistory Key = "command_history"

	HistoryLoading          Key = "history_loading"
	HistoryEmpty            Key = "history_empty"
	HistoryFailed           Key = "history_failed"
	HistoryHeader           Key = "history_header"
	HistoryTextEntry        Key = "history_text_entry"
	HistoryFileEntry        Key = "history_file_entry"
	HistoryRecommendation   Key = "history_recommendation"
	HistoryNoRecommendation Key = "history_no_recommendation"

	AckText     Key = "ack_text"
	AckPhoto    Key = "ack_photo"
	AckDocument Key = "ack_document"

	TextTooLong         Key = "text_too_long"
	FileTooLarge        Key = "file_too_large"
	ServiceUnavailable  Key = "service_unavailable"
	TransportFetchError Key = "transport_fetch_error"
	UploadFailed        Key = "upload_failed"
	ProcessingFailed    Key = "processing_failed"
	UnsupportedDocument Key = "unsupported_document"

	AnalysisNotConfigured Key = "analysis_not_configured"
	AnalysisTextApology   Key = "analysis_text_apology"
	AnalysisImageApology  Key = "analysis_image_apology"
	DefaultImagePrompt    Key = "default_image_prompt"
)

// Supported locales.
const (
	English = "en"
	Russian = "ru"
)

var catalog = map[string]map[Key]string{
	English: {
		Welcome: "Hi, %s! Welcome to the AI Health Analyzer.\n\n" +
			"I can analyze your medical test results and give personal recommendations.\n\n" +
			"To begin, send me the text, a photo or a document with your test results.",
		Help: "Welcome to the AI Health Analyzer!\n\n" +
			"Available commands:\n" +
			"/start - start working with the bot\n" +
			"/help - show this help message\n" +
			"/history - view your analysis history\n\n" +
			"Just send me text, a photo or an image of your medical results and I will provide a detailed analysis and recommendations.",
		CommandStart:   "Start working with the bot",
		CommandHelp:    "Show help",
		CommandHistory: "Your analysis history",

		HistoryLoading:          "Fetching your analysis history, please wait...",
		HistoryEmpty:            "You have no analysis history yet.",
		HistoryFailed:           "Sorry, I could not retrieve your history.",
		HistoryHeader:           "Here are your last %d analyses:",
		HistoryTextEntry:        "Text: \"%s\"",
		HistoryFileEntry:        "Analysis from a file.",
		HistoryRecommendation:   "Recommendation: %s",
		HistoryNoRecommendation: "No recommendations found.",

		AckText:     "I received your message. Analyzing the data, please wait...",
		AckPhoto:    "Photo received. Processing, please wait...",
		AckDocument: "Image received. Processing, please wait...",

		TextTooLong:         "Sorry, your message is too long. The maximum length is %d characters. Please shorten it.",
		FileTooLarge:        "Sorry, the file is too large. The maximum file size is %dMB.",
		ServiceUnavailable:  "Sorry, a database error occurred. Please try again later.",
		TransportFetchError: "Sorry, I could not get the file from Telegram. Please try again.",
		UploadFailed:        "Sorry, an error occurred while uploading the file. Please try again later.",
		ProcessingFailed:    "Sorry, something went wrong while processing your request.",
		UnsupportedDocument: "Thanks for the document. Right now I can only analyze images and plain text. " +
			"Support for PDF and other formats is coming later! Please send the results as a photo or paste the text into a message.",

		AnalysisNotConfigured: "The analysis service is not configured. Please contact the administrator.",
		AnalysisTextApology:   "Sorry, I encountered an error while analyzing the data. Please try again later.",
		AnalysisImageApology:  "Sorry, I encountered an error while analyzing the image. Please try again later.",
		DefaultImagePrompt:    "Analyze the attached medical test results.",
	},
	Russian: {
		Welcome: "Привет, %s! Добро пожаловать в AI Анализатор Здоровья.\n\n" +
			"Я могу проанализировать ваши медицинские анализы и предоставить персональные рекомендации.\n\n" +
			"Чтобы начать, просто отправьте мне текст, фото или документ с результатами ваших анализов.",
		Help: "Добро пожаловать в AI Анализатор Здоровья!\n\n" +
			"Доступные команды:\n" +
			"/start - начать работу с ботом\n" +
			"/help - показать это справочное сообщение\n" +
			"/history - посмотреть историю ваших анализов\n\n" +
			"Просто отправьте мне текст, фото или изображение ваших медицинских результатов, и я предоставлю подробный анализ и рекомендации.",
		CommandStart:   "Начать работу с ботом",
		CommandHelp:    "Показать справку",
		CommandHistory: "История ваших анализов",

		HistoryLoading:          "Получаю историю ваших анализов, пожалуйста, подождите...",
		HistoryEmpty:            "У вас пока нет истории анализов.",
		HistoryFailed:           "Извините, не удалось получить вашу историю.",
		HistoryHeader:           "Вот ваши последние %d анализов:",
		HistoryTextEntry:        "Текст: \"%s\"",
		HistoryFileEntry:        "Анализ из файла.",
		HistoryRecommendation:   "Рекомендация: %s",
		HistoryNoRecommendation: "Рекомендации не найдены.",

		AckText:     "Я получил ваше сообщение. Анализирую данные, пожалуйста, подождите...",
		AckPhoto:    "Фото получено. Обрабатываю, пожалуйста, подождите...",
		AckDocument: "Изображение получено. Обрабатываю, пожалуйста, подождите...",

		TextTooLong:         "Извините, ваше сообщение слишком длинное. Максимальная длина — %d символов. Пожалуйста, сократите сообщение.",
		FileTooLarge:        "Извините, файл слишком большой. Максимальный размер файла %dMB.",
		ServiceUnavailable:  "Извините, ошибка базы данных. Пожалуйста, попробуйте позже.",
		TransportFetchError: "Извините, произошла ошибка при получении файла от Telegram. Попробуйте ещё раз.",
		UploadFailed:        "Извините, произошла ошибка при загрузке файла. Попробуйте позже.",
		ProcessingFailed:    "Извините, что-то пошло не так при обработке вашего запроса.",
		UnsupportedDocument: "Спасибо за документ. В настоящее время я могу анализировать только изображения и обычный текст. " +
			"Поддержка PDF и других форматов появится позже! Пожалуйста, отправьте результаты в виде фото или скопируйте текст в сообщение.",

		AnalysisNotConfigured: "Сервис анализа не настроен. Пожалуйста, свяжитесь с администратором.",
		AnalysisTextApology:   "Извините, произошла ошибка при анализе данных. Пожалуйста, попробуйте позже.",
		AnalysisImageApology:  "Извините, произошла ошибка при анализе изображения. Пожалуйста, попробуйте позже.",
		DefaultImagePrompt:    "Проанализируй приложенные результаты медицинских тестов.",
	},
}

// Catalog resolves messages for a Telegram language code.
type Catalog struct {
	locales []string
	matcher language.Matcher
}

// NewCatalog creates a Catalog that falls back to defaultLocale.
func NewCatalog(defaultLocale string) (*Catalog, error) {
	if _, ok := catalog[defaultLocale]; !ok {
		return nil, fmt.Errorf("unsupported default locale %q", defaultLocale)
	}

	// The matcher falls back to its first tag.
	locales := []string{defaultLocale}
	for _, l := range []string{English, Russian} {
		if l != defaultLocale {
			locales = append(locales, l)
		}
	}
	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = language.MustParse(l)
	}

	return &Catalog{locales: locales, matcher: language.NewMatcher(tags)}, nil
}

// Locale returns the supported locale closest to a Telegram language code.
func (c *Catalog) Locale(languageCode string) string {
	if languageCode == "" {
		return c.locales[0]
	}
	_, idx := language.MatchStrings(c.matcher, languageCode)
	if idx < 0 || idx >= len(c.locales) {
		return c.locales[0]
	}
	return c.locales[idx]
}

// Default returns a Printer for the default locale.
func (c *Catalog) Default() Printer {
	return Printer{locale: c.locales[0]}
}

// For returns a Printer for the user's Telegram language code.
func (c *Catalog) For(languageCode string) Printer {
	return Printer{locale: c.Locale(languageCode)}
}

// Printer formats messages in one locale.
type Printer struct {
	locale string
}

// Locale returns the printer's locale.
func (p Printer) Locale() string { return p.locale }

// Text returns the message for key, formatted with args when given.
// A key missing from the locale falls back to English, then to the key itself.
func (p Printer) Text(key Key, args ...any) string {
	format, ok := catalog[p.locale][key]
	if !ok {
		if format, ok = catalog[English][key]; !ok {
			return string(key)
		}
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
