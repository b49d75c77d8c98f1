package gate

import "testing"

func TestIsKnownSafe(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"ls with flags", "ls -la", true},
		{"cat file", "cat /etc/hostname", true},
		{"git status", "git status", true},
		{"git diff", "git diff HEAD~1", true},
		{"git push not safe", "git push origin main", false},
		{"plain find", "find . -name *.go", true},
		{"find with delete", "find . -name tmp -delete", false},
		{"find with exec", "find . -exec rm {} ;", false},
		{"plain rg", "rg TODO internal", true},
		{"rg with preprocessor", "rg --pre cat secret", false},
		{"bash wrapping safe command", "bash -c ls", true},
		{"zsh wrapping safe command", "zsh -c pwd", true},
		{"bash wrapping rm", "bash -c rm -rf .", false},
		{"absolute path program", "/bin/ls -l", true},
		{"rm never safe", "rm -rf /", false},
		{"empty command", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsKnownSafe(tt.command); got != tt.want {
				t.Errorf("IsKnownSafe(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestIsDangerous(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"recursive force rm", "rm -rf /", true},
		{"recursive rm cwd", "rm -r build", true},
		{"sudo wrapped reset", "sudo git reset --hard", true},
		{"bash wrapped rm", "bash -c rm -rf .", true},
		{"git push", "git push origin main", true},
		{"git reset", "git reset --hard HEAD~3", true},
		{"disk write", "dd if=/dev/zero of=/dev/sda", true},
		{"mkfs variant", "mkfs.ext4 /dev/sda1", true},
		{"fdisk", "fdisk /dev/sda", true},
		{"move into etc", "mv config.yaml /etc/app/config.yaml", true},
		{"recursive chmod", "chmod -R 777 /", true},
		{"recursive chown", "chown -R nobody /srv", true},
		{"kill dash nine", "kill -9 4242", true},
		{"kill init", "kill 1", true},
		{"shutdown", "shutdown -h now", true},
		{"fork bomb", ":(){ :|:& };:", true},
		{"device redirect", "echo x > /dev/sda", true},
		{"plain kill", "kill 4242", false},
		{"listing", "ls -la", false},
		{"echo", "echo hello", false},
		{"safe git", "git log --oneline", false},
		{"ordinary build", "make test", false},
		{"empty command", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDangerous(tt.command); got != tt.want {
				t.Errorf("IsDangerous(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}
