package valueobject

import "fmt"

// Provider представляет поставщика AI API
type Provider string

const (
	ProviderOpenAI      Provider = "openai"
	ProviderAnthropic   Provider = "anthropic"
	ProviderGoogle      Provider = "google"
	ProviderAzure       Provider = "azure"
	ProviderAWS         Provider = "aws"
	ProviderHuggingFace Provider = "huggingface"
	ProviderCustom      Provider = "custom"
)

// Validate проверяет, что провайдер известен
func (p Provider) Validate() error {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderAzure,
		ProviderAWS, ProviderHuggingFace, ProviderCustom:
		return nil
	default:
		return fmt.Errorf("invalid provider: %q", string(p))
	}
}

func (p Provider) String() string {
	return string(p)
}
