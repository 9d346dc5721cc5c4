package port

// Tokenizer turns raw text into the cleaned tokens fed to the topic model.
type Tokenizer interface {
	Tokenize(text string) []string
}
