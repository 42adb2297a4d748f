package deploy

import (
	"fmt"
	"os"
)

// detectDockerfile generates a Dockerfile for sourceDir by inspecting its
// top-level build manifest, backing the "nixpacks" BuildStrategy for
// repositories that ship no Dockerfile of their own. Grounded directly on
// the teacher's generateDockerfile (internal/api/api.go): same manifest
// probes, same base images, same fallback ordering. Returns "" if no
// recognized stack is found.
func detectDockerfile(sourceDir string, port int) string {
	if port == 0 {
		port = 8080
	}

	if _, err := os.Stat(sourceDir + "/package.json"); err == nil {
		installCmd := "npm install"
		lockCopy := "COPY package*.json ./"
		if _, err := os.Stat(sourceDir + "/yarn.lock"); err == nil {
			installCmd = "yarn install --frozen-lockfile"
			lockCopy = "COPY package.json yarn.lock ./"
		} else if _, err := os.Stat(sourceDir + "/pnpm-lock.yaml"); err == nil {
			installCmd = "corepack enable && pnpm install --frozen-lockfile"
			lockCopy = "COPY package.json pnpm-lock.yaml ./"
		}
		return fmt.Sprintf(`FROM node:20-alpine
WORKDIR /app
%s
RUN %s
COPY . .
RUN npm run build 2>/dev/null || true
EXPOSE %d
CMD ["npm", "start"]
`, lockCopy, installCmd, port)
	}

	if _, err := os.Stat(sourceDir + "/go.mod"); err == nil {
		return fmt.Sprintf(`FROM golang:1.24-alpine AS builder
WORKDIR /app
COPY go.mod go.sum ./
RUN go mod download
COPY . .
RUN CGO_ENABLED=0 go build -o /app/server .

FROM alpine:3.19
WORKDIR /app
COPY --from=builder /app/server .
EXPOSE %d
CMD ["./server"]
`, port)
	}

	if _, err := os.Stat(sourceDir + "/requirements.txt"); err == nil {
		return fmt.Sprintf(`FROM python:3.12-slim
WORKDIR /app
COPY requirements.txt .
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
EXPOSE %d
CMD ["python", "app.py"]
`, port)
	}
	if _, err := os.Stat(sourceDir + "/pyproject.toml"); err == nil {
		return fmt.Sprintf(`FROM python:3.12-slim
WORKDIR /app
COPY pyproject.toml .
RUN pip install --no-cache-dir .
COPY . .
EXPOSE %d
CMD ["python", "-m", "app"]
`, port)
	}

	if _, err := os.Stat(sourceDir + "/Gemfile"); err == nil {
		return fmt.Sprintf(`FROM ruby:3.3-slim
WORKDIR /app
COPY Gemfile Gemfile.lock ./
RUN bundle install
COPY . .
EXPOSE %d
CMD ["ruby", "app.rb"]
`, port)
	}

	if _, err := os.Stat(sourceDir + "/Cargo.toml"); err == nil {
		return fmt.Sprintf(`FROM rust:1.77-slim AS builder
WORKDIR /app
COPY . .
RUN cargo build --release

FROM debian:bookworm-slim
WORKDIR /app
COPY --from=builder /app/target/release/* /app/
EXPOSE %d
CMD ["./app"]
`, port)
	}

	return ""
}
