package nutrimeal

import (
	"strings"
	"time"
)

type ProviderConfig struct {
	LogMealTokens  string `env:"LOGMEAL_TOKENS"`
	LogMealBaseURL string `env:"LOGMEAL_BASE_URL,default=https://api.logmeal.com"`

	// NutritionixKeys is a list of "appId:appKey" pairs.
	NutritionixKeys    string `env:"NUTRITIONIX_KEYS"`
	NutritionixBaseURL string `env:"NUTRITIONIX_BASE_URL,default=https://trackapi.nutritionix.com"`

	ClarifaiKeys       string `env:"CLARIFAI_KEYS"`
	ClarifaiBaseURL    string `env:"CLARIFAI_BASE_URL,default=https://api.clarifai.com"`
	ClarifaiUserID     string `env:"CLARIFAI_USER_ID,default=clarifai"`
	ClarifaiAppID      string `env:"CLARIFAI_APP_ID,default=main"`
	ClarifaiWorkflowID string `env:"CLARIFAI_WORKFLOW_ID,default=Food"`

	OpenFoodFactsHosts string `env:"OPENFOODFACTS_HOSTS,default=https://world.openfoodfacts.org,https://us.openfoodfacts.org,https://mx.openfoodfacts.org,https://es.openfoodfacts.org"`

	VisionProvider           string  `env:"VISION_PROVIDER,default=logmeal"`
	BedrockModelID           string  `env:"BEDROCK_MODEL_ID,default=us.anthropic.claude-3-haiku-20240307-v1:0"`
	RekognitionMinConfidence float32 `env:"REKOGNITION_MIN_CONFIDENCE,default=40"`
	OllamaBaseURL            string  `env:"OLLAMA_BASE_URL,default=http://localhost:11434"`
	OllamaModel              string  `env:"OLLAMA_MODEL,default=llava"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT,default=12s"`
}

// Hosts splits OpenFoodFactsHosts on commas.
func (c ProviderConfig) Hosts() []string {
	var out []string
	for _, h := range strings.Split(c.OpenFoodFactsHosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, strings.TrimRight(h, "/"))
		}
	}
	return out
}

type PipelineConfig struct {
	CacheTTL               time.Duration `env:"CACHE_TTL,default=12h"`
	ReferenceMinConfidence float64       `env:"REFERENCE_MIN_CONFIDENCE,default=0.7"`
	MaxIngredients         int           `env:"MAX_INGREDIENTS,default=8"`
	TraceLogDir            string        `env:"TRACE_LOG_DIR,default=./logs"`
}

type StorageConfig struct {
	CredentialsPath string `env:"CREDENTIALS_PATH,default=artifacts/credentials.json"`
	ReferencesPath  string `env:"REFERENCES_PATH,default=artifacts/references.json"`
	ArtifactsBucket string `env:"ARTIFACTS_BUCKET"`
	CredentialsKey  string `env:"CREDENTIALS_KEY,default=credentials.json"`
	ReferencesKey   string `env:"REFERENCES_KEY,default=references.json"`
}

type ServerConfig struct {
	Addr            string        `env:"SERVER_ADDR,default=:8080"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	EnableOtel      bool          `env:"SERVER_OTEL,default=false"`
}
