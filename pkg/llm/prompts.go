package llm

import (
	"fmt"
	"strings"
)

const ReviewerSystemPrompt = "You are an expert academic peer reviewer specializing in evaluating research papers and generating peer reviews."

const ClaimExtractorSystemPrompt = `You are an expert at analyzing academic peer reviews. Extract all verifiable claims from the following peer review.

For each claim:
- Break compound statements into atomic claims (one fact per claim)
- Identify the category: factual (about the paper content), methodological (about methods/approach), attribution (citing other work), or comparative (comparing to other work)
- Keep the original sentence for reference

Focus on claims that can be verified against the paper content. Skip purely subjective opinions like "the paper is well-written".`

const ClaimValidatorSystemPrompt = `You are an expert at evaluating the quality of extracted claims from peer reviews.

For each claim, assess:
1. Is it well-formed and verifiable? (not vague or subjective)
2. Is it truly atomic? (single fact, not compound)
3. Is the category correct?
4. Confidence score (0-1) based on quality

If a claim has issues, provide a corrected version when possible.`

const JudgeSystemPrompt = `You are an expert fact-checker evaluating claims from academic peer reviews against source paper content.

Your task is to determine if the given claim is supported by the provided evidence from the paper.

Verdict categories:
- SUPPORTED: The claim is fully supported by the evidence. The evidence directly states or clearly implies what the claim asserts.
- PARTIALLY_SUPPORTED: The claim is partially correct but missing nuance, or only some aspects are supported.
- NOT_SUPPORTED: The evidence does not address this claim (neither supports nor contradicts). The claim cannot be verified from the given evidence.
- CONTRADICTED: The evidence directly contradicts the claim. The claim states something opposite to what the evidence says.

Be especially careful with:
- Negations ("not", "does not", "less", "lower")
- Comparatives ("more than", "less than", "better", "worse")
- Specific numbers and statistics
- Attribution of methods or results to specific entities

Provide a brief, factual explanation for your verdict.`

const reviewInstructions = `Please provide a comprehensive peer review covering:
1. Summary of the paper
2. Strengths
3. Weaknesses
4. Detailed comments and suggestions`

// ReviewWithContextPrompt asks for a review grounded on retrieved excerpts.
func ReviewWithContextPrompt(title, abstract, excerpts string) string {
	return fmt.Sprintf(`Review the following research paper based on these key excerpts from the paper:

=== KEY EXCERPTS ===
%s

=== PAPER INFORMATION ===
TITLE: %s

ABSTRACT: %s

%s`, excerpts, title, abstract, reviewInstructions)
}

// ReviewFullTextPrompt asks for a review from the whole paper body.
func ReviewFullTextPrompt(title, abstract, fullText string) string {
	return fmt.Sprintf(`Review the following research paper:

=== PAPER INFORMATION ===
TITLE: %s

ABSTRACT: %s

=== FULL CONTENT ===
%s

%s`, title, abstract, fullText, reviewInstructions)
}

// FormatEvidence numbers evidence chunks from 1.
func FormatEvidence(chunks []string) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[Evidence %d]:\n%s", i+1, c)
	}
	return strings.Join(blocks, "\n\n")
}

func JudgePrompt(claim string, evidence []string) string {
	return fmt.Sprintf(`Claim to verify:
"%s"

Evidence from the paper:
%s

Evaluate whether the evidence supports, partially supports, contradicts, or does not address this claim.`, claim, FormatEvidence(evidence))
}
