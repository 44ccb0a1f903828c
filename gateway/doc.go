// Package gateway turns a (personality, prompt, history) tuple into response
// text. It is the single abstraction the orchestration engine has over LLM
// providers; transport specifics stay behind the Generator interface.
package gateway
