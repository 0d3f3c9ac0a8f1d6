package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/nutribot",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Backend: BackendConfig{
			URL:           "http://localhost:8000",
			UploadTimeout: "2m",
		},
		Chat: ChatConfig{
			TypingDelay:  "10ms",
			DefaultModel: "llama3.2:1b",
			Recovery:     "replace",
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# NutriBot System Configuration
# Location: ~/.config/nutribot/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations and user config are stored
data_directory = "~/.local/share/nutribot"
`
}

func GenerateUserConfigTemplate() string {
	return `# NutriBot User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[backend]
# NutriBot backend URL (serves /chat and /upload-pdf)
url = "http://localhost:8000"

# How long a PDF upload may take before it is abandoned
upload_timeout = "2m"

[chat]
# Delay between streamed characters; cosmetic only, "0s" disables it
typing_delay = "10ms"

# Model selected on first start: "llama3.2:1b" (local) or
# "llama-3.3-70b-versatile" (remote)
default_model = "llama3.2:1b"

# What happens to a partial answer when the stream fails:
#   "replace" - remove it and show only the error
#   "keep"    - keep it and show the error below it
recovery = "replace"

[storage]
# "sqlite" stores state in <data_directory>/nutribot.db,
# "bolt" in <data_directory>/nutribot.bolt,
# "file" in JSON files under <data_directory>/state
driver = "sqlite"
`
}
