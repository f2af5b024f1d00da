package templates

import "os"

const configTemplate = `
environment: dev
host: 127.0.0.1
port: 8188
disable_metadata: false

s3:
  profile: "default"
  region_name: "ap-northeast-1"

gdrive:
  root_id: ""

db:
  driver: "sqlite"

mq:
  type: "inmemory"
  max_size: 64
`

const envTemplate = `# OPENAI_API_KEY=
# GDRIVE_ROOT_ID=
# AWS_PROFILE=default
`

func GetConfigTemplate() string {
	return configTemplate
}

func GetEnvTemplate() string {
	return envTemplate
}

func WriteConfig(path string) error {
	return writeTemplate(path, GetConfigTemplate())
}

func WriteEnv(path string) error {
	return writeTemplate(path, GetEnvTemplate())
}

func writeTemplate(path, content string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(content)
	if err != nil {
		return err
	}

	return nil
}
