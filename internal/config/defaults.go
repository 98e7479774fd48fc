package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Data.SourceName == "" {
		cfg.Data.SourceName = "source.txt"
	}
	if cfg.Data.TargetName == "" {
		cfg.Data.TargetName = "target.txt"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "sidecar"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "./m2"
	}
	if cfg.Cache.DatabasePath == "" {
		cfg.Cache.DatabasePath = "./m2/edit_cache.db"
	}
	if cfg.Align.Tool == "" {
		cfg.Align.Tool = "errant"
	}
	if cfg.Align.Command == "" {
		cfg.Align.Command = "errant_parallel"
	}
	if cfg.Align.TimeoutSeconds == 0 {
		cfg.Align.TimeoutSeconds = 300
	}
	if cfg.Model.VocabPath == "" {
		cfg.Model.VocabPath = "./model/systems.vocab"
	}
	if cfg.Model.TypesPath == "" {
		cfg.Model.TypesPath = "./model/types.vocab"
	}
	if cfg.Model.CheckpointPath == "" {
		cfg.Model.CheckpointPath = "./model/combiner.ckpt"
	}
	if cfg.Model.Threshold == 0 {
		cfg.Model.Threshold = 0.5
	}
	if cfg.Train.LearningRate == 0 {
		cfg.Train.LearningRate = 0.1
	}
	if cfg.Train.Epochs == 0 {
		cfg.Train.Epochs = 100
	}
	if cfg.Train.BatchSize == 0 {
		cfg.Train.BatchSize = 16
	}
	if cfg.Train.Folds == 0 {
		cfg.Train.Folds = 5
	}
	if cfg.Combine.Workers == 0 {
		cfg.Combine.Workers = 4
	}
	if cfg.Combine.OutputPath == "" {
		cfg.Combine.OutputPath = "./out.txt"
	}
}
