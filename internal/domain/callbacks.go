// Package domain defines shared domain constants and types.
package domain

// Inline keyboard callback identifiers.
const (
	CallbackRandomRecipe = "random_recipe"
	CallbackAcceptRecipe = "accept_recipe"
)

// Bot commands, without the leading slash.
const (
	CommandStart   = "start"
	CommandRecipe  = "recipe"
	CommandSetTime = "settime"
)
