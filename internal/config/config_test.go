package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shoenig/test/must"
	"github.com/spf13/viper"
)

func loadFromHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	viper.Set("cesilk_home", home)
	viper.Set("output_dir", "")
	t.Cleanup(func() {
		viper.Set("cesilk_home", "")
		viper.Set("output_dir", "")
		SetConfig(nil)
	})

	must.NoError(t, LoadEnvAndConfigFiles())
	return home
}

func TestLoadEnvAndConfigFilesWritesDefaults(t *testing.T) {
	home := loadFromHome(t)

	must.FileExists(t, filepath.Join(home, "config.yaml"))
	must.FileExists(t, filepath.Join(home, ".env"))
	must.DirExists(t, filepath.Join(home, "output"))

	must.True(t, IsLoaded())
	cfg := MustGetConfig()
	must.EqOp(t, DefaultPort, cfg.Port)
	must.EqOp(t, DefaultHost, cfg.Host)
	must.EqOp(t, filepath.Join(home, "output"), cfg.OutputDir)
	must.EqOp(t, "sqlite", cfg.DB.Driver)
	must.StrContains(t, cfg.DB.DSN, filepath.Join(home, "cesilk.db"))
	must.EqOp(t, MQTypeInMemory, cfg.MQ.Type)
	must.EqOp(t, DefaultQueueSize, cfg.MQ.MaxSize)
	must.EqOp(t, DefaultS3Region, cfg.S3.Region)
	must.EqOp(t, filepath.Join(home, "credentials.json"), cfg.GDrive.CredentialsFile)
}

func TestLoadEnvAndConfigFilesEnvOverrides(t *testing.T) {
	t.Setenv("CESILK_PORT", "9000")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GDRIVE_ROOT_ID", "root-folder")

	loadFromHome(t)

	cfg := MustGetConfig()
	must.EqOp(t, 9000, cfg.Port)
	must.EqOp(t, "sk-test", cfg.OpenAI.APIKey)
	must.EqOp(t, "root-folder", cfg.GDrive.RootID)
}

func TestLoadEnvAndConfigFilesKeepsExistingFiles(t *testing.T) {
	home := t.TempDir()
	custom := "environment: prod\nport: 8300\n"
	must.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(custom), 0o644))
	must.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("CESILK_HOST=0.0.0.0\n"), 0o644))
	t.Setenv("CESILK_HOST", "")
	os.Unsetenv("CESILK_HOST")

	viper.Set("cesilk_home", home)
	viper.Set("output_dir", "")
	t.Cleanup(func() {
		viper.Set("cesilk_home", "")
		os.Unsetenv("CESILK_HOST")
		SetConfig(nil)
	})

	must.NoError(t, LoadEnvAndConfigFiles())

	data, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	must.NoError(t, err)
	must.EqOp(t, custom, string(data))

	cfg := MustGetConfig()
	must.EqOp(t, "prod", cfg.Environment)
	must.EqOp(t, 8300, cfg.Port)
	must.EqOp(t, "0.0.0.0", cfg.Host)
}

func TestMustGetConfigPanicsBeforeLoad(t *testing.T) {
	SetConfig(nil)
	must.False(t, IsLoaded())

	defer func() {
		must.NotNil(t, recover())
	}()
	MustGetConfig()
}
