package dinner

import (
	"fmt"

	"dinner_recipe_bot/internal/domain"
)

// texts are the UI strings of one language.
type texts struct {
	start         string
	setTimeUsage  string
	hourRange     string
	minuteRange   string
	repeatsRange  string
	setTimeDone   string // hour, minute, repeats
	accepted      string // recipe text
	failure       string
	anotherRecipe string
	acceptRecipe  string
}

var englishTexts = texts{
	start: "Hi! I am a dinner recipe bot.\n" +
		"Use /settime <hour> <minute> <repeats> to set the time and number of daily recipes.\n" +
		"Use /recipe to get a recipe right now.\n" +
		"You can add preferences and ingredients: /recipe vegetarian potato carrot",
	setTimeUsage:  "Usage: /settime <hour> <minute> <repeats> (for example /settime 18 30 3)",
	hourRange:     "Hour must be between 0 and 23.",
	minuteRange:   "Minute must be between 0 and 59.",
	repeatsRange:  "Repeats must be 0 or more.",
	setTimeDone:   "Recipe time set to %02d:%02d, repeats: %d",
	accepted:      "Great! Enjoy your dinner with this recipe:\n%s",
	failure:       "Something went wrong, please try again later.",
	anotherRecipe: "Another random recipe",
	acceptRecipe:  "Accept recipe",
}

var russianTexts = texts{
	start: "Привет! Я бот с рецептами на ужин.\n" +
		"Используй /settime <часы> <минуты> <повторы> чтобы настроить время и количество повторов.\n" +
		"Используй /recipe чтобы получить рецепт прямо сейчас.\n" +
		"Можно указать предпочтения и ингредиенты: /recipe вегетарианский картофель морковь",
	setTimeUsage:  "Использование: /settime <часы> <минуты> <повторы> (например /settime 18 30 3)",
	hourRange:     "Часы должны быть от 0 до 23.",
	minuteRange:   "Минуты должны быть от 0 до 59.",
	repeatsRange:  "Количество повторов не может быть отрицательным.",
	setTimeDone:   "Время для отправки рецепта установлено на %02d:%02d, повторов: %d",
	accepted:      "Отлично! Приятного ужина с рецептом:\n%s",
	failure:       "Что-то пошло не так, попробуйте позже.",
	anotherRecipe: "Случайный другой рецепт",
	acceptRecipe:  "Принять рецепт",
}

// textsFor falls back to English for unknown languages.
func textsFor(lang string) texts {
	if lang == domain.LanguageRussian {
		return russianTexts
	}
	return englishTexts
}

func (t texts) recipeKeyboard() [][]domain.Button {
	return [][]domain.Button{
		{{Text: t.anotherRecipe, Data: domain.CallbackRandomRecipe}},
		{{Text: t.acceptRecipe, Data: domain.CallbackAcceptRecipe}},
	}
}

func (t texts) recipeReply(text string) domain.Reply {
	return domain.Reply{Text: text, Buttons: t.recipeKeyboard()}
}

func (t texts) setTimeDoneText(hour, minute, repeats int) string {
	return fmt.Sprintf(t.setTimeDone, hour, minute, repeats)
}

func (t texts) acceptedText(recipe string) string {
	return fmt.Sprintf(t.accepted, recipe)
}

func textReply(text string) domain.Reply {
	return domain.Reply{Text: text}
}
