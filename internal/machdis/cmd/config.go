package cmd

import (
	"debug/macho"
	"os"

	"machdis/internal/disasm"
)

// Config is the environment the command reads. It has no flags.
type Config struct {
	Arch       string `json:"arch,omitempty" jsonschema:"title=Architecture,description=Decoder override (arm64 or amd64); default follows the Mach-O CPU type,enum=arm64,enum=amd64"`
	NoColor    bool   `json:"noColor" jsonschema:"title=No Color,description=Disable highlighting even on a terminal"`
	Debug      bool   `json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	LogLevel   string `json:"logLevel,omitempty" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error,default=info"`
	LogPrefix  string `json:"logPrefix,omitempty" jsonschema:"title=Log Prefix,description=Prefix for log lines"`
	LogToFile  bool   `json:"logToFile" jsonschema:"title=Log To File,description=Write logs to a timestamped file instead of stderr"`
	CPUProfile string `json:"cpuProfile,omitempty" jsonschema:"title=CPU Profile,description=Path for CPU profile output"`
}

// LoadConfig reads MACHDIS_* variables.
func LoadConfig() Config {
	return Config{
		Arch:       os.Getenv("MACHDIS_ARCH"),
		NoColor:    os.Getenv("MACHDIS_NO_COLOR") != "",
		Debug:      os.Getenv("MACHDIS_DEBUG") != "",
		LogLevel:   os.Getenv("MACHDIS_LOG_LEVEL"),
		LogPrefix:  os.Getenv("MACHDIS_LOG_PREFIX"),
		LogToFile:  os.Getenv("MACHDIS_LOG_TO_FILE") == "1",
		CPUProfile: os.Getenv("MACHDIS_CPUPROFILE"),
	}
}

// decoder picks the decoder arch for cpu, honouring the Arch override.
func (c Config) decoder(cpu macho.Cpu) (disasm.Arch, disasm.Mode, error) {
	if c.Arch != "" {
		return disasm.ParseArch(c.Arch)
	}
	return disasm.ForCPU(cpu)
}
