package app

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		args []string
		want Command
	}{
		{nil, CommandServe},
		{[]string{}, CommandServe},
		{[]string{"serve"}, CommandServe},
		{[]string{"worker"}, CommandWorker},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"unknown"}, CommandServe},
		{[]string{"worker", "extra"}, CommandWorker},
	}

	for _, c := range cases {
		if got := ParseCommand(c.args); got != c.want {
			t.Errorf("ParseCommand(%v) = %s, want %s", c.args, got, c.want)
		}
	}
}
