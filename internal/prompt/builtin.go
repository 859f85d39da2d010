package prompt

var builtinTemplates = map[string]string{
	Generate:   generateTemplate,
	Retry:      retryTemplate,
	Categorize: categorizeTemplate,
	Revise:     reviseTemplate,
}

const outputFormat = `## Output format

Reply with the complete new content of every file you change, one block per file:

#File <relative/path>:
<full file content>

Start each block with the marker line exactly as shown. Do not put anything
between blocks. Files you do not mention are left unchanged. Paths must be
relative to the project root.`

const generateTemplate = `You are modifying an existing software project.

## Context
{{context}}

## Task
{{task}}
{{#if truncated}}
Note: the following files were truncated in the context above: {{truncated}}
{{/if}}
` + outputFormat + "\n"

const retryTemplate = `You are modifying an existing software project. A previous attempt at this
task was applied but verification failed (attempt {{attempt}} of {{max_attempts}}).

## Context
{{context}}

## Task
{{task}}

## Verification output
{{failure}}
{{#if changed_files}}
## Files changed by the previous attempt
{{changed_files}}
{{/if}}
Fix the problems shown by the verification output.

` + outputFormat + "\n"

const categorizeTemplate = `You are an expert in software development and project organization.

Categorize the following root-level items of a project into two lists:
1. Project Items: files and directories likely to contain source code, configuration or documentation.
2. Excluded Items: build artifacts, caches, generated content, third-party dependencies, temporary or backup files.

Items:
{{items}}

Reply in exactly this format and categorize every item:

Project Items:
- item

Excluded Items:
- item
`

const reviseTemplate = `Update the project and excluded item lists according to the user's request.

Current Project Items:
{{included}}

Current Excluded Items:
{{excluded}}
{{#if auto_excluded}}
Automatically Excluded Items (cannot be changed):
{{auto_excluded}}
{{/if}}
User Requested Changes:
{{changes}}

Reply in exactly this format, accounting for every item from both current lists:

Project Items:
- item

Excluded Items:
- item
`
