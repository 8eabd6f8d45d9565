package config

// LoadFromEnv reads an optional .env file, then the process environment.
// Variables already set in the environment win over the file.
func LoadFromEnv() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return Load(FromEnviron())
}

func LoadStreamFromEnv() (StreamConfig, error) {
	if err := loadDotEnv(".env"); err != nil {
		return StreamConfig{}, err
	}
	return LoadStream(FromEnviron())
}
